// Package snapshot persists the whole feed under a single key, so a restart
// picks up where the previous process left off.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sujalbistaa/moments/internal/db"
	"github.com/sujalbistaa/moments/internal/models"
)

// Store reads and writes a feed snapshot. Load returns nil posts and no error
// when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]models.Post, error)
	Save(ctx context.Context, posts []models.Post) error
	Close() error
}

// Open picks a backend from the url scheme: redis://, rediss://, nats://,
// sqlite:// or postgres://.
func Open(ctx context.Context, url, key string, log *slog.Logger) (Store, error) {
	scheme, _, _ := strings.Cut(url, "://")
	switch scheme {
	case "redis", "rediss":
		return NewRedis(ctx, url, key)
	case "nats", "tls":
		return NewNATS(ctx, url, key)
	case "sqlite", "postgres", "postgresql":
		gdb, err := db.Open(url, log)
		if err != nil {
			return nil, err
		}
		return NewSQL(gdb, key), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot url scheme %q", scheme)
	}
}

func encode(posts []models.Post) ([]byte, error) {
	if posts == nil {
		posts = []models.Post{}
	}
	data, err := json.Marshal(posts)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]models.Post, error) {
	var posts []models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return posts, nil
}
