package router

import (
	"fmt"
	"strings"
)

const wildcardMarkers = "+#"

// MatchTopic reports whether topic matches pattern.
//
// Without a wildcard marker the match is exact. With one, topic matches if it
// contains the part of pattern before the marker anywhere in it. Everything
// after the marker is ignored.
func MatchTopic(pattern, topic string) bool {
	i := strings.IndexAny(pattern, wildcardMarkers)
	if i < 0 {
		return pattern == topic
	}
	return strings.Contains(topic, pattern[:i])
}

// validatePattern rejects patterns MatchTopic cannot interpret.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	markers := strings.Count(pattern, "+") + strings.Count(pattern, "#")
	if markers > 1 {
		return fmt.Errorf("%w: %q has %d wildcard markers, at most one is supported", ErrInvalidPattern, pattern, markers)
	}
	return nil
}
