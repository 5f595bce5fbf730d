package reconciler

import (
	"strings"

	"github.com/agentstation/enrollsync/pkg/errors"
)

// Strategy is how participants are matched against a target's records.
type Strategy string

const (
	// StrategyExact matches on participant code. Matches are updated in
	// batches and misses are inserted.
	StrategyExact Strategy = "exact"
	// StrategyFuzzy matches on pension number, phonetic name and birth date.
	// Matches get a single-record membership update and misses are only
	// logged. Pending events for the participant are settled afterwards.
	StrategyFuzzy Strategy = "fuzzy"
)

// String returns the string representation of a strategy.
func (s Strategy) String() string {
	return string(s)
}

// Name returns the display name of the strategy.
func (s Strategy) Name() string {
	str := s.String()
	if str == "" {
		return str
	}
	return strings.ToUpper(str[:1]) + str[1:]
}

// ParseStrategy validates a configured join strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyExact:
		return StrategyExact, nil
	case StrategyFuzzy:
		return StrategyFuzzy, nil
	default:
		return "", errors.NewValidationError("join", s, "must be exact or fuzzy")
	}
}
