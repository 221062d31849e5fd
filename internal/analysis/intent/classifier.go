// Package intent classifies executive questions into analysis angles by
// scoring keyword hits. Deliberately simple: one point per keyword
// found in the lowercased question, highest bucket wins, no hits means
// a general question.
package intent

import "strings"

// Label 表示一次提问的分析角度。
type Label string

const (
	Performance Label = "performance"
	Comparison  Label = "comparison"
	Anomaly     Label = "anomaly"
	Drilldown   Label = "drilldown"
	General     Label = "general"
)

// Title returns the display form used in answer headers.
func (l Label) Title() string {
	switch l {
	case Drilldown:
		return "Drilldown"
	default:
		return strings.ToUpper(string(l[:1])) + string(l[1:])
	}
}

var keywordBuckets = []struct {
	label    Label
	keywords []string
}{
	{Performance, []string{
		"sales", "revenue", "performance", "trend", "growth", "volume",
		"q1", "q2", "q3", "q4", "quarter", "month", "year",
	}},
	{Comparison, []string{
		"compare", "versus", "vs", "difference", "better", "worse", "than",
		"last year", "this year",
	}},
	{Anomaly, []string{
		"underperforming", "overperforming", "outlier", "unusual", "anomaly",
		"spike", "drop", "concern", "problem",
	}},
	{Drilldown, []string{
		"why", "what's driving", "cause", "reason", "breakdown", "detail",
		"explain", "factors",
	}},
}

// Classify scores the question against each keyword bucket. Ties break
// toward the bucket listed first, and a question with no hits is
// General.
func Classify(question string) Label {
	normalized := strings.ToLower(question)

	best := General
	bestScore := 0
	for _, bucket := range keywordBuckets {
		score := 0
		for _, kw := range bucket.keywords {
			if strings.Contains(normalized, kw) {
				score++
			}
		}
		if score > bestScore {
			best = bucket.label
			bestScore = score
		}
	}

	return best
}
