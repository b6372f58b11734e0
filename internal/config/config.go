// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sujalbistaa/moments/internal/engine"
	"github.com/sujalbistaa/moments/internal/models"
	"github.com/sujalbistaa/moments/internal/reply"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port           string  `envconfig:"PORT" default:"3000"`
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	CORSOrigin     string  `envconfig:"CORS_ORIGIN" default:"*"`
	AdminToken     string  `envconfig:"X_ADMIN_TOKEN"`
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"1"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"5"`

	SeedMoments  bool   `envconfig:"SEED_MOMENTS" default:"true"`
	PersonasFile string `envconfig:"PERSONAS_FILE"`
	SnapshotURL  string `envconfig:"SNAPSHOT_URL"`
	SnapshotKey  string `envconfig:"SNAPSHOT_KEY" default:"ai_moments"`

	AIProvider string        `envconfig:"AI_PROVIDER" default:"mock"`
	AIAPIKey   string        `envconfig:"AI_API_KEY"`
	AIModel    string        `envconfig:"AI_MODEL"`
	AIBaseURL  string        `envconfig:"AI_BASE_URL"`
	AITimeout  time.Duration `envconfig:"AI_TIMEOUT" default:"10s"`

	ReplyProbability        float64       `envconfig:"AI_REPLY_PROBABILITY" default:"1"`
	ReplyDelayMin           time.Duration `envconfig:"AI_REPLY_DELAY_MIN" default:"200ms"`
	ReplyDelayMax           time.Duration `envconfig:"AI_REPLY_DELAY_MAX" default:"400ms"`
	CommentDelayMin         time.Duration `envconfig:"AI_COMMENT_DELAY_MIN" default:"200ms"`
	CommentDelayMax         time.Duration `envconfig:"AI_COMMENT_DELAY_MAX" default:"400ms"`
	BetweenDelayMin         time.Duration `envconfig:"AI_BETWEEN_DELAY_MIN" default:"200ms"`
	BetweenDelayMax         time.Duration `envconfig:"AI_BETWEEN_DELAY_MAX" default:"600ms"`
	CommentProbability      float64       `envconfig:"AI_COMMENT_PROBABILITY" default:"0.5"`
	ReplyCommentProbability float64       `envconfig:"AI_REPLY_COMMENT_PROBABILITY" default:"1"`
	MarkerImage             string        `envconfig:"AI_MARKER_IMAGE" default:"sea.jpg"`
	Workers                 int           `envconfig:"AI_WORKERS" default:"4"`

	HumanUserID   string `envconfig:"HUMAN_USER_ID" default:"user"`
	HumanUsername string `envconfig:"HUMAN_USERNAME" default:"我"`
}

// Load fills a Config from the environment and validates it.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	probabilities := map[string]float64{
		"AI_REPLY_PROBABILITY":         c.ReplyProbability,
		"AI_COMMENT_PROBABILITY":       c.CommentProbability,
		"AI_REPLY_COMMENT_PROBABILITY": c.ReplyCommentProbability,
	}
	for name, p := range probabilities {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %v", ErrInvalidConfig, name, p)
		}
	}

	windows := []struct {
		name     string
		min, max time.Duration
	}{
		{"AI_REPLY_DELAY", c.ReplyDelayMin, c.ReplyDelayMax},
		{"AI_COMMENT_DELAY", c.CommentDelayMin, c.CommentDelayMax},
		{"AI_BETWEEN_DELAY", c.BetweenDelayMin, c.BetweenDelayMax},
	}
	for _, w := range windows {
		if w.min < 0 || w.max < w.min {
			return fmt.Errorf("%w: %s_MIN (%s) must be >= 0 and <= %s_MAX (%s)", ErrInvalidConfig, w.name, w.min, w.name, w.max)
		}
	}

	if c.Workers <= 0 {
		return fmt.Errorf("%w: AI_WORKERS must be positive", ErrInvalidConfig)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("%w: rate limit must be positive", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.HumanUserID) == "" || strings.TrimSpace(c.HumanUsername) == "" {
		return fmt.Errorf("%w: human identity must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Engine returns the persona engine settings. Secondary-persona odds keep
// their defaults.
func (c Config) Engine() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.ReplyProbability = c.ReplyProbability
	cfg.PostDelay = engine.Window{Min: c.ReplyDelayMin, Max: c.ReplyDelayMax}
	cfg.CommentDelay = engine.Window{Min: c.CommentDelayMin, Max: c.CommentDelayMax}
	cfg.BetweenDelay = engine.Window{Min: c.BetweenDelayMin, Max: c.BetweenDelayMax}
	cfg.CommentProbability = c.CommentProbability
	cfg.ReplyCommentProbability = c.ReplyCommentProbability
	cfg.MarkerImage = c.MarkerImage
	cfg.Workers = c.Workers
	cfg.QueueSize = c.Workers * 16
	return cfg
}

func (c Config) Reply() reply.Config {
	return reply.Config{
		Provider: c.AIProvider,
		APIKey:   c.AIAPIKey,
		Model:    c.AIModel,
		BaseURL:  c.AIBaseURL,
		Timeout:  c.AITimeout,
	}
}

// Human is the default identity for requests that omit one.
func (c Config) Human() models.Author {
	return models.Author{ID: c.HumanUserID, Name: c.HumanUsername}
}
