package store

import (
	"context"
	"errors"
	"time"

	"livepreview/internal/models"
)

var (
	ErrNotFound     = errors.New("preview not found")
	ErrDuplicateKey = errors.New("preview id already exists")
	// ErrConflict is returned when a Patch precondition does not hold.
	ErrConflict = errors.New("preview status precondition failed")
)

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status  *models.Status
	LiveURL *string
	Error   *string

	// IfStatus, when set, makes the update conditional on the current status.
	IfStatus *models.Status
}

// Store persists preview records keyed by id. Implementations must make
// Update atomic with respect to concurrent Update and Read of the same id.
type Store interface {
	Insert(ctx context.Context, p *models.Preview) error
	Read(ctx context.Context, id string) (*models.Preview, error)
	Update(ctx context.Context, id string, patch Patch) (*models.Preview, error)
}

// Transition builds a patch moving a record from one status to another.
func Transition(from, to models.Status) Patch {
	return Patch{Status: &to, IfStatus: &from}
}

// WithLiveURL sets the live URL on the patch.
func (p Patch) WithLiveURL(url string) Patch {
	p.LiveURL = &url
	return p
}

// WithError sets the failure message on the patch.
func (p Patch) WithError(msg string) Patch {
	p.Error = &msg
	return p
}

// apply merges patch into rec and stamps UpdatedAt.
func apply(rec *models.Preview, patch Patch, now time.Time) error {
	if patch.IfStatus != nil && rec.Status != *patch.IfStatus {
		return ErrConflict
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.LiveURL != nil {
		u := *patch.LiveURL
		rec.LiveURL = &u
	}
	if patch.Error != nil {
		e := *patch.Error
		rec.Error = &e
	}
	rec.UpdatedAt = now
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
