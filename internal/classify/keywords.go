package classify

import (
	"fmt"
	"strings"
)

// Category maps a set of keywords to either a sub-task template or a canned
// result. Keywords match as case-insensitive substrings.
type Category struct {
	// Name identifies the category in logs and dry runs.
	Name string `yaml:"name"`
	// Keywords trigger the category when any of them appears in the task.
	Keywords []string `yaml:"keywords"`
	// Subtasks is the template returned by Split.
	Subtasks []string `yaml:"subtasks,omitempty"`
	// Result is the phrase returned by Execute.
	Result string `yaml:"result,omitempty"`
}

// matches returns the first keyword of c found in lower, if any.
func (c Category) matches(lower string) (string, bool) {
	for _, kw := range c.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// Table is the single source of truth for keyword classification.
// Split rules and result rules are independent lookups; a task can match
// different categories in each.
type Table struct {
	// Complexity keywords make a task eligible for decomposition.
	Complexity []string `yaml:"complexity"`
	// Splits are checked in order; the first match wins.
	Splits []Category `yaml:"splits"`
	// SplitFallback applies when no split category matches.
	SplitFallback []string `yaml:"split_fallback"`
	// Results are checked in order; the first match wins.
	Results []Category `yaml:"results"`
	// ResultFallback applies when no result category matches.
	ResultFallback string `yaml:"result_fallback"`
}

// DefaultTable returns the built-in keyword table.
func DefaultTable() Table {
	return Table{
		Complexity: []string{
			"plan",
			"create",
			"develop",
			"design",
			"build",
			"analyze",
			"research",
			"compare",
			"evaluate",
			"organize",
			"trip",
		},
		Splits: []Category{
			{
				Name:     "trip",
				Keywords: []string{"trip", "travel"},
				Subtasks: []string{
					"Research and book flights",
					"Find and reserve accommodation",
					"Plan daily activities and itinerary",
					"Calculate total budget and costs",
				},
			},
			{
				Name:     "flight",
				Keywords: []string{"flight"},
				Subtasks: []string{
					"Compare airline prices and schedules",
					"Evaluate flight duration and layovers",
					"Check baggage policies and fees",
				},
			},
			{
				Name:     "accommodation",
				Keywords: []string{"hotel", "accommodation"},
				Subtasks: []string{
					"Search hotels by location and ratings",
					"Compare prices and amenities",
					"Check availability and cancellation policies",
				},
			},
			{
				Name:     "itinerary",
				Keywords: []string{"activit", "itinerary"},
				Subtasks: []string{
					"Research popular attractions and landmarks",
					"Find local restaurants and dining options",
					"Plan transportation between locations",
				},
			},
			{
				Name:     "planning",
				Keywords: []string{"plan", "organize"},
				Subtasks: []string{
					"Define objectives and requirements",
					"Research relevant information",
					"Evaluate options and alternatives",
					"Create timeline and action items",
				},
			},
		},
		SplitFallback: []string{
			"Gather necessary information",
			"Analyze requirements",
			"Generate solution",
		},
		Results: []Category{
			{
				Name:     "travel",
				Keywords: []string{"plan", "trip"},
				Result:   "Analyzed travel requirements. Key considerations: budget, duration, season, interests. Ready to delegate specific aspects.",
			},
			{
				Name:     "flight",
				Keywords: []string{"flight"},
				Result:   "Found optimal flight options considering price, duration, and convenience. Recommendations prepared.",
			},
			{
				Name:     "accommodation",
				Keywords: []string{"hotel", "accommodation"},
				Result:   "Evaluated accommodations based on location, ratings, and amenities. Top choices identified.",
			},
			{
				Name:     "itinerary",
				Keywords: []string{"activit", "itinerary"},
				Result:   "Curated activities matching interests and schedule. Daily itinerary optimized.",
			},
			{
				Name:     "research",
				Keywords: []string{"research"},
				Result:   "Completed research gathering. Data compiled and analyzed for decision making.",
			},
			{
				Name:     "analysis",
				Keywords: []string{"analyze", "evaluat"},
				Result:   "Analysis complete. Patterns identified and insights extracted from available data.",
			},
			{
				Name:     "writing",
				Keywords: []string{"write", "create"},
				Result:   "Content generated following best practices. Structure and flow optimized.",
			},
			{
				Name:     "calculation",
				Keywords: []string{"calculate", "compute"},
				Result:   "Calculations completed. Results verified and formatted for presentation.",
			},
		},
		ResultFallback: "Task processed successfully. Requirements analyzed and solution prepared.",
	}
}

// Validate checks that the table can always produce a split and a result.
func (t Table) Validate() error {
	if len(t.SplitFallback) == 0 {
		return fmt.Errorf("split_fallback must list at least one sub-task")
	}
	if strings.TrimSpace(t.ResultFallback) == "" {
		return fmt.Errorf("result_fallback must not be empty")
	}
	for i, c := range t.Splits {
		if len(c.Keywords) == 0 {
			return fmt.Errorf("split category %d (%s) has no keywords", i, c.Name)
		}
		if len(c.Subtasks) == 0 {
			return fmt.Errorf("split category %d (%s) has no subtasks", i, c.Name)
		}
	}
	for i, c := range t.Results {
		if len(c.Keywords) == 0 {
			return fmt.Errorf("result category %d (%s) has no keywords", i, c.Name)
		}
		if strings.TrimSpace(c.Result) == "" {
			return fmt.Errorf("result category %d (%s) has no result", i, c.Name)
		}
	}
	return nil
}

// IsComplex returns the first complexity keyword found in text.
func (t Table) IsComplex(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range t.Complexity {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// SplitCategory returns the split category for text, or a synthetic
// "fallback" category holding SplitFallback.
func (t Table) SplitCategory(text string) Category {
	lower := strings.ToLower(text)
	for _, c := range t.Splits {
		if _, ok := c.matches(lower); ok {
			return c
		}
	}
	return Category{Name: "fallback", Subtasks: t.SplitFallback}
}

// ResultCategory returns the result category for text, or a synthetic
// "fallback" category holding ResultFallback.
func (t Table) ResultCategory(text string) Category {
	lower := strings.ToLower(text)
	for _, c := range t.Results {
		if _, ok := c.matches(lower); ok {
			return c
		}
	}
	return Category{Name: "fallback", Result: t.ResultFallback}
}
