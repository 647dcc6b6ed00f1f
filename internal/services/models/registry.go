// File: internal/services/models/registry.go
package models

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/scylladb/go-set/strset"
)

const DefaultTTL = 60 * time.Second

// Lister fetches the backend's model ids.
type Lister interface {
	ListModels(ctx context.Context) ([]string, error)
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Warn(string, ...interface{})  {}

type Config struct {
	TTL time.Duration
	// Glob patterns for models that never get a chat-shaped request.
	// '*' matches any run of characters; everything else is literal.
	RawPatterns []string
}

func DefaultConfig() *Config {
	return &Config{TTL: DefaultTTL}
}

// Registry caches the backend model list. A failed refresh keeps the
// previous snapshot.
type Registry struct {
	lister Lister
	ttl    time.Duration
	raw    []*regexp.Regexp
	logger Logger
	now    func() time.Time

	mu        sync.RWMutex
	models    []string
	index     *strset.Set
	fetchedAt time.Time
}

func NewRegistry(lister Lister, config *Config, logger Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	raw := make([]*regexp.Regexp, 0, len(config.RawPatterns))
	for _, p := range config.RawPatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		raw = append(raw, compileGlob(p))
	}

	return &Registry{
		lister: lister,
		ttl:    ttl,
		raw:    raw,
		logger: logger,
		now:    time.Now,
		index:  strset.New(),
	}
}

func compileGlob(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// Refresh re-fetches when forced, when the cache is empty or when it is
// older than the TTL. Errors are logged, never returned.
func (r *Registry) Refresh(ctx context.Context, force bool) []string {
	if !force && r.fresh() {
		return r.Models()
	}
	if _, err := r.Fetch(ctx); err != nil {
		r.logger.Warn("could not refresh model cache, keeping previous list",
			"error", err,
			"cached", len(r.Models()))
	}
	return r.Models()
}

// Fetch always calls the backend and, on success, replaces the cache.
func (r *Registry) Fetch(ctx context.Context) ([]string, error) {
	ids, err := r.lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.models = append([]string(nil), ids...)
	r.index = strset.New(ids...)
	r.fetchedAt = r.now()
	r.mu.Unlock()

	r.logger.Debug("model cache refreshed", "count", len(ids))
	return append([]string(nil), ids...), nil
}

func (r *Registry) fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models) > 0 && r.now().Sub(r.fetchedAt) < r.ttl
}

func (r *Registry) IsAvailable(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Has(id)
}

func (r *Registry) IsRawPreferred(id string) bool {
	for _, re := range r.raw {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}

// Models returns the cached ids in backend order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.models...)
}

func (r *Registry) FetchedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}
