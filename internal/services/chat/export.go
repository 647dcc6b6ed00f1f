// File: internal/services/chat/export.go
package chat

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/iyunix/go-lmproxy/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Exporter renders transcripts. Raw HTML inside messages is escaped.
type Exporter struct {
	md goldmark.Markdown
}

func NewExporter() *Exporter {
	return &Exporter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

func (e *Exporter) Render(c *domain.Chat, format ExportFormat) ([]byte, error) {
	doc := e.Markdown(c)
	if format != FormatHTML {
		return []byte(doc), nil
	}

	var body bytes.Buffer
	if err := e.md.Convert([]byte(doc), &body); err != nil {
		return nil, fmt.Errorf("render chat %s: %w", c.ID, err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	out.WriteString(html.EscapeString(c.Title))
	out.WriteString("</title>\n</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func (e *Exporter) Markdown(c *domain.Chat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	fmt.Fprintf(&b, "_Created %s, updated %s_\n", c.CreatedAt.UTC().Format(time.RFC3339), c.UpdatedAt.UTC().Format(time.RFC3339))

	for _, m := range c.Messages {
		speaker := "Assistant"
		if m.IsUser {
			speaker = "You"
		}
		fmt.Fprintf(&b, "\n### %s (%s)\n\n%s\n", speaker, m.Timestamp.UTC().Format(time.RFC3339), strings.TrimSpace(m.Content))
	}
	return b.String()
}
