package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/google/uuid"
)

// ActivityType classifies an activity entry.
type ActivityType string

const (
	ActivityResult ActivityType = "result"
	ActivityCourse ActivityType = "course"
	ActivityUser   ActivityType = "user"
	ActivitySystem ActivityType = "system"
)

// ActivityEntry is one item of the recent-activity feed.
type ActivityEntry struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	ReferenceID string       `json:"referenceId"`
	PerformedBy string       `json:"performedBy"`
	IPAddress   string       `json:"ipAddress,omitempty"`
	UserAgent   string       `json:"userAgent,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Feed limits for RecentActivity.
const (
	DefaultActivityLimit = 10
	MaxActivityLimit     = 100
)

// recordActivity appends an entry to the feed. Failures are logged, never
// returned: the feed must not fail the mutation it describes.
func (s *Service) recordActivity(ctx context.Context, typ ActivityType, title, description, referenceID string) {
	entry := ActivityEntry{
		ID:          uuid.New().String(),
		Type:        typ,
		Title:       title,
		Description: description,
		ReferenceID: referenceID,
		PerformedBy: ActorFromContext(ctx),
		IPAddress:   IPAddressFromContext(ctx),
		UserAgent:   UserAgentFromContext(ctx),
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertActivity(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("activity: insert failed",
			"type", typ,
			"reference_id", referenceID,
			"error", err,
		)
	}
}

// RecentActivity returns the newest entries first. limit is clamped to
// [1, MaxActivityLimit]; zero means DefaultActivityLimit.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}
	return s.store.RecentActivity(ctx, limit)
}
