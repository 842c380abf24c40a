package monitor

import "strings"

// Classifier maps transaction log lines to an instruction label, or ""
// when the lines are inconclusive. Venue-specific log heuristics live
// behind this type; the pipeline only calls it.
type Classifier func(logs []string) string

// instructionMarkers are common program-log markers in priority order.
var instructionMarkers = []struct {
	marker string
	label  string
}{
	{"Instruction: Swap", "swap"},
	{"Instruction: Buy", "buy"},
	{"Instruction: Sell", "sell"},
	{"Instruction: Deposit", "deposit"},
	{"Instruction: Withdraw", "withdraw"},
	{"Instruction: MintTo", "mint"},
	{"Instruction: Burn", "burn"},
	{"ray_log", "swap"},
}

// DefaultClassifier labels by the first known marker found in the logs.
func DefaultClassifier(logs []string) string {
	for _, line := range logs {
		for _, m := range instructionMarkers {
			if strings.Contains(line, m.marker) {
				return m.label
			}
		}
	}
	return ""
}

// ClassifierRegistry holds per-venue classifiers with a shared fallback.
type ClassifierRegistry struct {
	byVenue  map[string]Classifier
	fallback Classifier
}

// NewClassifierRegistry creates a registry with DefaultClassifier as the
// fallback.
func NewClassifierRegistry() *ClassifierRegistry {
	return &ClassifierRegistry{
		byVenue:  make(map[string]Classifier),
		fallback: DefaultClassifier,
	}
}

// Register installs a classifier for one venue.
func (r *ClassifierRegistry) Register(venueID string, c Classifier) {
	r.byVenue[venueID] = c
}

// Classify labels log lines for a venue.
func (r *ClassifierRegistry) Classify(venueID string, logs []string) string {
	if c, ok := r.byVenue[venueID]; ok {
		return c(logs)
	}
	return r.fallback(logs)
}
