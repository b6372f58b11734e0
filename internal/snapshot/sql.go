package snapshot

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/moments/internal/db"
	"github.com/sujalbistaa/moments/internal/models"
)

// SQL keeps the snapshot in one row of the snapshots table.
type SQL struct {
	db  *gorm.DB
	key string
}

func NewSQL(gdb *gorm.DB, key string) *SQL {
	return &SQL{db: gdb, key: key}
}

func (s *SQL) Load(ctx context.Context) ([]models.Post, error) {
	var snap models.Snapshot
	err := s.db.WithContext(ctx).Where("key = ?", s.key).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", s.key, err)
	}
	return decode(snap.Payload)
}

func (s *SQL) Save(ctx context.Context, posts []models.Post) error {
	data, err := encode(posts)
	if err != nil {
		return err
	}
	snap := models.Snapshot{Key: s.key, Payload: data}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&snap).Error
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", s.key, err)
	}
	return nil
}

func (s *SQL) Close() error {
	return db.Close(s.db)
}
