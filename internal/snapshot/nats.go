package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sujalbistaa/moments/internal/models"
)

// Bucket is the JetStream key-value bucket holding snapshots.
const Bucket = "moments"

// NATS keeps the snapshot in a JetStream key-value bucket.
type NATS struct {
	nc  *nats.Conn
	kv  jetstream.KeyValue
	key string
}

// NewNATS connects to url and creates the bucket if it does not exist.
func NewNATS(ctx context.Context, url, key string) (*NATS, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      Bucket,
		Description: "feed snapshots",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("key value bucket %s: %w", Bucket, err)
	}

	return &NATS{nc: nc, kv: kv, key: key}, nil
}

func (n *NATS) Load(ctx context.Context) ([]models.Post, error) {
	entry, err := n.kv.Get(ctx, n.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", n.key, err)
	}
	return decode(entry.Value())
}

func (n *NATS) Save(ctx context.Context, posts []models.Post) error {
	data, err := encode(posts)
	if err != nil {
		return err
	}
	if _, err := n.kv.Put(ctx, n.key, data); err != nil {
		return fmt.Errorf("failed to store key %s: %w", n.key, err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.nc.Close()
	return nil
}
