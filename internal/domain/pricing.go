package domain

// Base credit prices per job type. Slow jobs pay a multiplier on top since
// they hold provider capacity far longer.
var baseCost = map[JobType]int64{
	JobTypeTextToImage:  4,
	JobTypeImageToImage: 6,
	JobTypeTextToVideo:  40,
	JobTypeImageToVideo: 50,
}

const slowCostMultiplier = 2

// CostFor returns the credit price of a job before submission.
func CostFor(t JobType, slow bool) int64 {
	cost := baseCost[t]
	if slow {
		cost *= slowCostMultiplier
	}
	return cost
}
