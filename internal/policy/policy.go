// Package policy applies acceptance-rule screening to extracted works.
package policy

import (
	"fmt"
	"strings"

	"github.com/mferrill/workherald/internal/workmeta"
)

// Screener checks a normalized work against the configured acceptance rules.
// A screened-out work is structurally fine; it is routed to moderation review,
// not treated as an error.
type Screener struct {
	deniedRatings map[string]struct{}
	deniedTags    map[string]struct{}
}

// New builds a Screener from denied rating and tag lists. Matching is
// case-insensitive.
func New(deniedRatings, deniedTags []string) *Screener {
	return &Screener{
		deniedRatings: lowerSet(deniedRatings),
		deniedTags:    lowerSet(deniedTags),
	}
}

// Screen returns ok=false with a human-readable reason when the work fails an
// acceptance rule.
func (s *Screener) Screen(work *workmeta.WorkMetadata) (bool, string) {
	for _, rating := range work.Rating {
		if _, denied := s.deniedRatings[strings.ToLower(rating)]; denied {
			return false, fmt.Sprintf("rating %q is not accepted", rating)
		}
	}
	for _, group := range [][]string{work.Warnings, work.FreeformTags, work.Relationships, work.Characters} {
		for _, tag := range group {
			if _, denied := s.deniedTags[strings.ToLower(tag)]; denied {
				return false, fmt.Sprintf("tag %q is not accepted", tag)
			}
		}
	}
	return true, ""
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
