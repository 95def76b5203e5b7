package models

import "time"

type Status string

const (
	StatusBuilding   Status = "building"
	StatusGenerating Status = "generating"
	StatusDeploying  Status = "deploying"
	StatusLive       Status = "live"
	StatusFailed     Status = "failed"
)

// AnonymousUser is recorded when a request carries no user id.
const AnonymousUser = "anonymous"

// Preview tracks one prompt-to-deployed-app request.
type Preview struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Prompt    string    `gorm:"not null" json:"prompt"`
	UserID    string    `gorm:"not null;index;default:'anonymous'" json:"userId"`
	Status    Status    `gorm:"not null;size:16;index" json:"status"`
	LiveURL   *string   `gorm:"column:live_url" json:"liveUrl"`
	Error     *string   `gorm:"column:error_message" json:"error"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Preview) TableName() string {
	return "previews"
}

// Clone returns a deep copy so callers never share the pointer fields.
func (p *Preview) Clone() *Preview {
	if p == nil {
		return nil
	}
	out := *p
	if p.LiveURL != nil {
		u := *p.LiveURL
		out.LiveURL = &u
	}
	if p.Error != nil {
		e := *p.Error
		out.Error = &e
	}
	return &out
}

func (s Status) Valid() bool {
	switch s {
	case StatusBuilding, StatusGenerating, StatusDeploying, StatusLive, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further mutation may happen.
func (s Status) Terminal() bool {
	return s == StatusLive || s == StatusFailed
}

// next holds the single forward step of the happy path.
var next = map[Status]Status{
	StatusBuilding:   StatusGenerating,
	StatusGenerating: StatusDeploying,
	StatusDeploying:  StatusLive,
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return next[from] == to
}
