package ratelimit

// Tier caps how many emails an account may send per day, hour, and
// minute. Tiers are bracketed by account age so new senders warm up
// gradually and build reputation before reaching full volume.
type Tier struct {
	// MaxAgeDays is the inclusive upper bound of the bracket.
	// Zero means unbounded (the mature tier).
	MaxAgeDays   int    `json:"max_age_days"`
	MaxPerDay    int    `json:"max_per_day"`
	MaxPerHour   int    `json:"max_per_hour"`
	MaxPerMinute int    `json:"max_per_minute"`
	Name         string `json:"name"`
	Description  string `json:"description"`
}

// tiers is ordered by bracket boundary; TierFor scans it in order and
// falls through to the final unbounded entry.
var tiers = []Tier{
	{MaxAgeDays: 3, MaxPerDay: 50, MaxPerHour: 10, MaxPerMinute: 2, Name: "New", Description: "Account under 3 days old, minimal volume"},
	{MaxAgeDays: 7, MaxPerDay: 100, MaxPerHour: 20, MaxPerMinute: 5, Name: "Building", Description: "First week, building initial reputation"},
	{MaxAgeDays: 14, MaxPerDay: 200, MaxPerHour: 40, MaxPerMinute: 10, Name: "Growing", Description: "Second week, growing volume"},
	{MaxAgeDays: 30, MaxPerDay: 400, MaxPerHour: 80, MaxPerMinute: 20, Name: "Established", Description: "First month, established sending pattern"},
	{MaxAgeDays: 0, MaxPerDay: 1000, MaxPerHour: 200, MaxPerMinute: 50, Name: "Mature", Description: "Past warm-up, full volume"},
}

// TierFor returns the warm-up tier for an account of the given age:
// the tier with the smallest bracket boundary that is >= the age,
// falling through to the unbounded mature tier.
func TierFor(accountAgeDays int) Tier {
	for _, t := range tiers {
		if t.MaxAgeDays > 0 && accountAgeDays <= t.MaxAgeDays {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// Tiers returns a copy of the full warm-up ladder, ordered by bracket.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}
