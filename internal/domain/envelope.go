package domain

import "time"

// Envelope is a preset donation tier. UsageCount counts completed donations.
type Envelope struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description,omitempty"`
	UsageCount  int        `json:"usage_count"`
	MaxUsage    *int       `json:"max_usage,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	Color       string     `json:"color,omitempty"`
	Icon        string     `json:"icon,omitempty"`
	SortOrder   int        `json:"sort_order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsAvailable reports whether the envelope can take a new donation at now.
func (e *Envelope) IsAvailable(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
		return false
	}
	if e.MaxUsage != nil && e.UsageCount >= *e.MaxUsage {
		return false
	}
	return true
}
