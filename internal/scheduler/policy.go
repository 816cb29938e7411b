package scheduler

import "github.com/leductu204/mit-img-banana-sub000/internal/domain"

// PromotionPolicy chooses which pending job the promoter dispatches next.
// The pending slice arrives oldest first; admissible reports whether a job
// would pass admission right now.
type PromotionPolicy interface {
	Select(pending []domain.Job, admissible func(*domain.Job) bool) *domain.Job
}

// SkipAheadFIFO promotes the first admissible job, skipping over jobs whose
// type is currently capped. A queued video can overtake an image stuck at the
// head; utilization wins over strict fairness.
type SkipAheadFIFO struct{}

func (SkipAheadFIFO) Select(pending []domain.Job, admissible func(*domain.Job) bool) *domain.Job {
	for i := range pending {
		if admissible(&pending[i]) {
			return &pending[i]
		}
	}
	return nil
}

// StrictFIFO only ever considers the head of the queue. If the oldest job is
// inadmissible, nothing is promoted.
type StrictFIFO struct{}

func (StrictFIFO) Select(pending []domain.Job, admissible func(*domain.Job) bool) *domain.Job {
	if len(pending) == 0 {
		return nil
	}
	if admissible(&pending[0]) {
		return &pending[0]
	}
	return nil
}
