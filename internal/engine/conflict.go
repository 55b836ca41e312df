package engine

import (
	"fmt"
	"sort"
)

// ConflictThreshold is the score below which a member finds another member's favorite unacceptable
const ConflictThreshold = 0.5

// ConflictDetector finds groups of members whose favorites are mutually unacceptable
type ConflictDetector struct {
	threshold float64
}

// NewConflictDetector creates a detector with the default threshold
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{threshold: ConflictThreshold}
}

// BestOptions returns each member's own top-scoring option, skipping members
// for whom nothing scores above zero
func BestOptions(m *ScoreMatrix) map[string]Option {
	best := make(map[string]Option, len(m.Users))
	for _, u := range m.Users {
		var top Option
		topScore := -1.0
		for _, o := range m.Options {
			s := m.Get(u, o.ID).Score
			if topScore < 0 || better(o, s, top, topScore) {
				top, topScore = o, s
			}
		}
		if topScore > 0 {
			best[u] = top
		}
	}
	return best
}

// Detect returns one conflict per contested option pair, ordered by option IDs
func (d *ConflictDetector) Detect(m *ScoreMatrix) []Conflict {
	best := BestOptions(m)

	type pairKey [2]string
	pairs := make(map[pairKey]map[string]bool)

	users := make([]string, 0, len(best))
	for _, u := range m.Users {
		if _, ok := best[u]; ok {
			users = append(users, u)
		}
	}

	for i := 0; i < len(users); i++ {
		for j := i + 1; j < len(users); j++ {
			u, v := users[i], users[j]
			bu, bv := best[u], best[v]
			if bu.ID == bv.ID {
				continue
			}
			if m.Get(u, bv.ID).Score >= d.threshold || m.Get(v, bu.ID).Score >= d.threshold {
				continue
			}
			key := pairKey{bu.ID, bv.ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if pairs[key] == nil {
				pairs[key] = make(map[string]bool)
			}
			pairs[key][u] = true
			pairs[key][v] = true
		}
	}

	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	conflicts := make([]Conflict, 0, len(keys))
	for _, k := range keys {
		members := make([]string, 0, len(pairs[k]))
		for u := range pairs[k] {
			members = append(members, u)
		}
		sort.Strings(members)
		conflicts = append(conflicts, d.describe(m, best, k, members))
	}
	return conflicts
}

func (d *ConflictDetector) describe(m *ScoreMatrix, best map[string]Option, sides [2]string, members []string) Conflict {
	c := Conflict{Severity: SeverityLow, sides: sides}
	names := [2]string{}
	counts := [2]int{}

	for _, u := range members {
		own := best[u]
		c.Participants = append(c.Participants, ConflictParticipant{UserID: u, Preference: own.Name})

		side := 0
		if own.ID == sides[1] {
			side = 1
		}
		names[side] = own.Name
		counts[side]++

		other := m.Get(u, sides[1-side])
		switch {
		case other.Vetoed:
			c.Severity = SeverityHigh
		case other.Breakdown.BudgetScore < 0.5 && c.Severity != SeverityHigh:
			c.Severity = SeverityMedium
		}
	}

	c.Description = fmt.Sprintf("%s %s %s while %s %s %s",
		memberCount(counts[0]), prefer(counts[0]), names[0],
		memberCount(counts[1]), prefer(counts[1]), names[1])
	switch c.Severity {
	case SeverityHigh:
		c.Description += "; a deal-breaker or dietary rule rules out one side"
	case SeverityMedium:
		c.Description += "; budget is the main blocker"
	}
	return c
}

func memberCount(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}

func prefer(n int) string {
	if n == 1 {
		return "prefers"
	}
	return "prefer"
}
