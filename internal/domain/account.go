package domain

import "time"

// ProviderAccount is one upstream credential pool with its own parallelism caps.
type ProviderAccount struct {
	ID                string
	Name              string
	Provider          string
	Credentials       string
	MaxParallelImages int
	MaxParallelVideos int
	MaxSlowImages     int
	MaxSlowVideos     int
	Priority          int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MaxParallel returns the account's cap for a media kind.
func (a *ProviderAccount) MaxParallel(kind MediaKind) int {
	if kind == MediaVideo {
		return a.MaxParallelVideos
	}
	return a.MaxParallelImages
}

// MaxSlow returns the account's secondary cap for slow jobs of a media kind.
func (a *ProviderAccount) MaxSlow(kind MediaKind) int {
	if kind == MediaVideo {
		return a.MaxSlowVideos
	}
	return a.MaxSlowImages
}

// AccountUsage is derived on demand from active jobs scoped to one account.
// It is never cached as account state.
type AccountUsage struct {
	Images     int
	Videos     int
	SlowImages int
	SlowVideos int
}

// ForMedia returns the active count for a media kind.
func (u AccountUsage) ForMedia(kind MediaKind) int {
	if kind == MediaVideo {
		return u.Videos
	}
	return u.Images
}

// SlowForMedia returns the active slow count for a media kind.
func (u AccountUsage) SlowForMedia(kind MediaKind) int {
	if kind == MediaVideo {
		return u.SlowVideos
	}
	return u.SlowImages
}
