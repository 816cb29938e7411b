package domain

import "time"

// SubscriptionPlan carries the concurrency entitlements attached to a user.
type SubscriptionPlan struct {
	ID                   string
	Name                 string
	TotalConcurrentLimit int
	ImageConcurrentLimit int
	VideoConcurrentLimit int
	QueueLimit           int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PlanLimits is the slice of a plan the admission path consumes.
type PlanLimits struct {
	Total      int
	Images     int
	Videos     int
	QueueLimit int
}

// DefaultPlanLimits applies to users without a plan reference. It is a real
// floor, not a stand-in for unlimited.
func DefaultPlanLimits() PlanLimits {
	return PlanLimits{Total: 2, Images: 1, Videos: 1, QueueLimit: 5}
}

// Limits projects a plan onto PlanLimits.
func (p *SubscriptionPlan) Limits() PlanLimits {
	return PlanLimits{
		Total:      p.TotalConcurrentLimit,
		Images:     p.ImageConcurrentLimit,
		Videos:     p.VideoConcurrentLimit,
		QueueLimit: p.QueueLimit,
	}
}

// ForMedia returns the per-kind limit.
func (l PlanLimits) ForMedia(kind MediaKind) int {
	if kind == MediaVideo {
		return l.Videos
	}
	return l.Images
}
