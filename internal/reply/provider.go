package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
)

const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderDashScope = "dashscope"
)

var providerDefaults = map[string]struct {
	baseURL string
	model   string
}{
	ProviderOpenAI:    {baseURL: "https://api.openai.com/v1", model: "gpt-3.5-turbo"},
	ProviderDeepSeek:  {baseURL: "https://api.deepseek.com", model: "deepseek-chat"},
	ProviderDashScope: {baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", model: "qwen-max"},
}

var placeholderKeys = []string{
	"your_openai_api_key_here",
	"your_dashscope_api_key_here",
	"your_deepseek_api_key_here",
}

var generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "moments_reply_generation_seconds",
	Help:    "Duration of reply generation calls.",
	Buckets: prometheus.DefBuckets,
}, []string{"provider", "outcome"})

// Config selects and configures the text-generation backend.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// New builds the generator for cfg and returns it with the provider name that
// was actually selected. A missing or placeholder key falls back to canned replies.
func New(cfg Config, canned *Canned, logger *slog.Logger) (Generator, string, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderMock {
		return instrument(canned, ProviderMock), ProviderMock, nil
	}

	defaults, ok := providerDefaults[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" || lo.Contains(placeholderKeys, cfg.APIKey) {
		logger.Warn("No usable API key configured, using canned replies", "provider", provider)
		return instrument(canned, ProviderMock), ProviderMock, nil
	}

	chat := NewChatCompletion(ChatConfig{
		BaseURL: firstNonEmpty(cfg.BaseURL, defaults.baseURL),
		APIKey:  cfg.APIKey,
		Model:   firstNonEmpty(cfg.Model, defaults.model),
		Timeout: cfg.Timeout,
	})
	logger.Info("AI client initialised", "provider", provider, "model", chat.cfg.Model)
	return instrument(chat, provider), provider, nil
}

type instrumented struct {
	next     Generator
	provider string
}

func instrument(g Generator, provider string) Generator {
	return &instrumented{next: g, provider: provider}
}

func (i *instrumented) Generate(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	text, err := i.next.Generate(ctx, p)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	generationDuration.WithLabelValues(i.provider, outcome).Observe(time.Since(start).Seconds())
	return text, err
}

// Close releases the underlying client, if any.
func (i *instrumented) Close() error {
	if c, ok := i.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
