package history

import (
	"fmt"
	"sort"
	"time"

	"grimm.is/bootcheck/internal/report"
)

// CaseHealth is a computed per-case view over all stored runs.
type CaseHealth struct {
	Name      string
	TotalRuns int
	PassCount int
	FailCount int
	SkipCount int
	PassRate  float64
	Grade     string // A, B, C, D, F
	Streak    int    // current run of consecutive passes
	LastRun   time.Time
}

// grade buckets mirror how CI dashboards talk about flakiness: an A case is
// trustworthy, an F case is noise.
func grade(passRate float64) string {
	switch {
	case passRate >= 0.95:
		return "A"
	case passRate >= 0.80:
		return "B"
	case passRate >= 0.50:
		return "C"
	case passRate >= 0.20:
		return "D"
	}
	return "F"
}

// Health computes per-case statistics across every stored run. Skipped
// executions count toward totals but not toward the pass rate, which is
// passes over decided (non-skipped) executions.
func (s *Store) Health() ([]CaseHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name, status, ts FROM cases ORDER BY name, ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("query case health: %w", err)
	}
	defer rows.Close()

	byName := map[string]*CaseHealth{}
	// statuses per name, newest first, for the streak walk
	recent := map[string][]string{}
	var order []string

	for rows.Next() {
		var name, status string
		var ts time.Time
		if err := rows.Scan(&name, &status, &ts); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}

		h := byName[name]
		if h == nil {
			h = &CaseHealth{Name: name, LastRun: ts}
			byName[name] = h
			order = append(order, name)
		}
		h.TotalRuns++
		switch report.Status(status) {
		case report.StatusPassed:
			h.PassCount++
		case report.StatusFailed:
			h.FailCount++
		case report.StatusSkipped:
			h.SkipCount++
		}
		recent[name] = append(recent[name], status)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []CaseHealth
	for _, name := range order {
		h := byName[name]
		decided := h.PassCount + h.FailCount
		if decided > 0 {
			h.PassRate = float64(h.PassCount) / float64(decided)
			h.Grade = grade(h.PassRate)
		} else {
			h.Grade = "?"
		}
		for _, st := range recent[name] {
			if report.Status(st) == report.StatusSkipped {
				continue
			}
			if report.Status(st) != report.StatusPassed {
				break
			}
			h.Streak++
		}
		out = append(out, *h)
	}

	// Worst first: failing grades surface at the top of the report.
	gradeRank := map[string]int{"F": 0, "D": 1, "C": 2, "B": 3, "A": 4, "?": 5}
	sort.SliceStable(out, func(i, j int) bool {
		if gradeRank[out[i].Grade] != gradeRank[out[j].Grade] {
			return gradeRank[out[i].Grade] < gradeRank[out[j].Grade]
		}
		return out[i].PassRate < out[j].PassRate
	})
	return out, nil
}
