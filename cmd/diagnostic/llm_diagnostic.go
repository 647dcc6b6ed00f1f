// File: cmd/diagnostic/llm_diagnostic.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iyunix/go-lmproxy/internal/config"
	"github.com/iyunix/go-lmproxy/internal/services"
	"github.com/iyunix/go-lmproxy/internal/services/ai"
	"github.com/iyunix/go-lmproxy/internal/services/models"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	stageColor = color.New(color.FgYellow)
	replyColor = color.New(color.FgCyan)
)

// backend bundles what every subcommand talks to.
type backend struct {
	cfg      *config.Config
	provider *ai.OpenAIProvider
	registry *models.Registry
	cascade  *ai.Cascade
}

func newBackend(verbose bool) *backend {
	cfg := config.Load()
	level := "WARN"
	if verbose {
		level = "DEBUG"
	}
	logger := services.NewLogger("lmproxy-diagnostic", cfg.Environment, level, verbose)

	aiConfig := ai.DefaultConfig()
	aiConfig.BaseURL = cfg.LMStudioURL
	aiConfig.APIKey = cfg.LMStudioAPIKey
	aiConfig.Timeout = cfg.RequestTimeout
	aiConfig.MaxRetries = cfg.MaxRetries
	aiConfig.SystemPrompt = cfg.SystemPrompt
	aiConfig.Verbose = verbose

	provider := ai.NewOpenAIProvider(aiConfig, nil, logger)
	registry := models.NewRegistry(provider, &models.Config{RawPatterns: cfg.ForceRawModels}, logger)
	return &backend{
		cfg:      cfg,
		provider: provider,
		registry: registry,
		cascade:  ai.NewCascade(provider, registry, ai.NewRetryConfig(aiConfig), aiConfig.SystemPrompt, logger),
	}
}

func main() {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:   "lmproxy-diagnostic",
		Short: "Probe an LM Studio backend the way the proxy does",
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log request payloads and cascade steps")

	rootCmd.AddCommand(
		newStatusCmd(&verbose),
		newModelsCmd(&verbose),
		newAskCmd(&verbose),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newStatusCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the backend answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := newBackend(*verbose)
			start := time.Now()
			if err := b.provider.Ping(cmd.Context()); err != nil {
				failColor.Printf("✗ %s is not reachable\n", b.cfg.LMStudioURL)
				fmt.Printf("  %s\n", ai.Detail(err))
				return err
			}
			okColor.Printf("✓ %s is online", b.cfg.LMStudioURL)
			fmt.Printf(" (%s)\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newModelsCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the backend has loaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := newBackend(*verbose)
			ids, err := b.registry.Fetch(cmd.Context())
			if err != nil {
				failColor.Println("✗ could not list models")
				fmt.Printf("  %s\n", ai.Detail(err))
				return err
			}
			okColor.Printf("%d model(s)", len(ids))
			fmt.Printf(" as of %s\n", b.registry.FetchedAt().Format(time.RFC3339))
			for _, id := range ids {
				marker := ""
				if b.registry.IsRawPreferred(id) {
					marker = stageColor.Sprint(" [raw]")
				}
				fmt.Printf("  - %s%s\n", id, marker)
			}
			return nil
		},
	}
}

func newAskCmd(verbose *bool) *cobra.Command {
	var opts struct {
		Model     string
		MaxTokens int
	}

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message through the completion cascade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := newBackend(*verbose)
			ctx := cmd.Context()

			model := opts.Model
			if model == "" {
				model = b.cfg.DefaultModel
			}
			if model == "" {
				ids := b.registry.Refresh(ctx, true)
				if len(ids) == 0 {
					return fmt.Errorf("no model given and none loaded")
				}
				model = ids[0]
			} else {
				b.registry.Refresh(ctx, true)
			}

			start := time.Now()
			res, err := b.cascade.Run(ctx, ai.CascadeRequest{
				Model:       model,
				Message:     args[0],
				MaxTokens:   opts.MaxTokens,
				Temperature: b.cfg.DefaultTemperature,
			})
			if err != nil {
				failColor.Printf("✗ %s failed\n", model)
				fmt.Printf("  %s\n", err)
				return err
			}

			okColor.Printf("✓ %s", res.Model)
			fmt.Printf(" via %s, %d tokens, %s\n",
				stageColor.Sprint(res.Stage), res.TokensUsed, time.Since(start).Round(time.Millisecond))
			replyColor.Println(res.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model id (defaults to DEFAULT_MODEL, then the first loaded model)")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", 200, "Generation budget")
	return cmd
}
