package store

import (
	"context"
	"errors"
	"fmt"

	"livepreview/internal/models"

	"gorm.io/gorm"
)

// GormStore persists previews in a SQL database (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, p *models.Preview) error {
	rec := p.Clone()
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert preview %s: %w", p.ID, err)
	}
	return nil
}

func (s *GormStore) Read(ctx context.Context, id string) (*models.Preview, error) {
	return s.read(s.db.WithContext(ctx), id)
}

func (s *GormStore) Update(ctx context.Context, id string, patch Patch) (*models.Preview, error) {
	cols := map[string]interface{}{"updated_at": now()}
	if patch.Status != nil {
		cols["status"] = string(*patch.Status)
	}
	if patch.LiveURL != nil {
		cols["live_url"] = *patch.LiveURL
	}
	if patch.Error != nil {
		cols["error_message"] = *patch.Error
	}

	var out *models.Preview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Preview{}).Where("id = ?", id)
		if patch.IfStatus != nil {
			q = q.Where("status = ?", string(*patch.IfStatus))
		}
		res := q.Updates(cols)
		if res.Error != nil {
			return res.Error
		}

		rec, err := s.read(tx, id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			// the row exists, so the status precondition rejected the write
			return ErrConflict
		}
		out = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update preview %s: %w", id, err)
	}
	return out, nil
}

func (s *GormStore) read(db *gorm.DB, id string) (*models.Preview, error) {
	var rec models.Preview
	if err := db.Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read preview %s: %w", id, err)
	}
	return &rec, nil
}
