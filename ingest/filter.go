package ingest

import (
	"fmt"

	"github.com/gobwas/glob"
)

// TeamFilter matches team IDs against configured glob patterns. An empty pattern
// list admits every team.
type TeamFilter struct {
	globs []glob.Glob
}

// NewTeamFilter compiles the allowlist patterns
func NewTeamFilter(patterns []string) (*TeamFilter, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for i, pattern := range patterns {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern[%d] '%s': %w", i, pattern, err)
		}
		globs = append(globs, compiled)
	}
	return &TeamFilter{globs: globs}, nil
}

// Allow tells whether records of the given team should be ingested
func (filter *TeamFilter) Allow(teamID string) bool {
	if len(filter.globs) == 0 {
		return true
	}
	for _, g := range filter.globs {
		if g.Match(teamID) {
			return true
		}
	}
	return false
}
