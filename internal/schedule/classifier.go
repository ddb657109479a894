package schedule

import (
	"regexp"
	"time"

	"github.com/opendatawatch/opendatawatch/internal/store"
)

// Tier base re-check frequencies.
var tierFrequency = map[store.Priority]time.Duration{
	store.PriorityCritical: 1 * time.Hour,
	store.PriorityHigh:     6 * time.Hour,
	store.PriorityMedium:   24 * time.Hour,
	store.PriorityLow:      168 * time.Hour,
}

// FrequencyHours returns the base re-check interval for a tier in hours.
// Unclassified datasets wait at the low-tier cadence until classified.
func FrequencyHours(p store.Priority) float64 {
	if f, ok := tierFrequency[p]; ok {
		return f.Hours()
	}
	return tierFrequency[store.PriorityLow].Hours()
}

// ClassifierInput is everything a classification decision looks at.
type ClassifierInput struct {
	Agency        string
	Title         string
	Volatility    float64 // composite churn score in [0,1]
	ChangesPerDay float64
}

// classifierRule is one row of the ordered rule table. Rules are evaluated
// top to bottom; the first matching rule decides the tier.
type classifierRule struct {
	priority store.Priority
	match    func(in ClassifierInput) bool
}

var (
	criticalAgencyPattern = regexp.MustCompile(`(?i)census|bureau of labor|bls\b|federal reserve|treasury|bureau of economic analysis|internal revenue|irs\b`)
	criticalTitlePattern  = regexp.MustCompile(`(?i)population|unemployment|inflation|gdp|gross domestic|interest rate|economic|financial|budget`)

	highAgencyPattern = regexp.MustCompile(`(?i)health|cdc\b|fda\b|environment|epa\b|transportation|faa\b|nhtsa`)

	mediumAgencyPattern = regexp.MustCompile(`(?i)education|agriculture|usda\b|labor\b|interior`)
)

var classifierRules = []classifierRule{
	{store.PriorityCritical, func(in ClassifierInput) bool { return criticalAgencyPattern.MatchString(in.Agency) }},
	{store.PriorityCritical, func(in ClassifierInput) bool { return criticalTitlePattern.MatchString(in.Title) }},
	{store.PriorityCritical, func(in ClassifierInput) bool { return in.Volatility > 0.8 }},
	{store.PriorityCritical, func(in ClassifierInput) bool { return in.ChangesPerDay > 0.5 }},

	{store.PriorityHigh, func(in ClassifierInput) bool { return highAgencyPattern.MatchString(in.Agency) }},
	{store.PriorityHigh, func(in ClassifierInput) bool { return in.Volatility > 0.5 }},
	{store.PriorityHigh, func(in ClassifierInput) bool { return in.ChangesPerDay > 0.3 }},

	{store.PriorityMedium, func(in ClassifierInput) bool { return mediumAgencyPattern.MatchString(in.Agency) }},
	{store.PriorityMedium, func(in ClassifierInput) bool { return in.Volatility > 0.2 }},
	{store.PriorityMedium, func(in ClassifierInput) bool { return in.ChangesPerDay > 0.1 }},
}

// Classify maps dataset attributes and volatility to a tier. Total and
// deterministic: every input lands on exactly one tier, low being the
// default when nothing above matches.
func Classify(in ClassifierInput) store.Priority {
	for _, r := range classifierRules {
		if r.match(in) {
			return r.priority
		}
	}
	return store.PriorityLow
}
