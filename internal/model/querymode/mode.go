package querymode

// Mode describes one analysis angle the query agent can take on the
// retail data. The mode's system prompt frames the model for that angle;
// the general mode has no static prompt because its framing is built
// from the live dataset context.
type Mode struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Focus        string `json:"focus"`
	SystemPrompt string `json:"-"`
	Example      string `json:"example"`
}

// Seed provides the built-in analysis modes matching the query
// classifier's labels.
func Seed() []Mode {
	return []Mode{
		{
			ID:          "performance",
			Name:        "Performance",
			Description: "Revenue, sales volumes and growth across the chain.",
			Focus:       "revenue trends, sales volumes, transaction counts, growth rates",
			SystemPrompt: "You are analyzing performance metrics for a retail chain.\n" +
				"Focus on: revenue trends, sales volumes, transaction counts, growth rates.\n" +
				"Provide specific numbers, percentages, and clear comparisons.",
			Example: "Show Q3 sales by region",
		},
		{
			ID:          "comparison",
			Name:        "Comparison",
			Description: "Side-by-side views of periods, regions and products.",
			Focus:       "period-over-period comparisons, regional differences, product category comparisons",
			SystemPrompt: "You are comparing business metrics across different dimensions.\n" +
				"Focus on: period-over-period comparisons, regional differences, product category comparisons.\n" +
				"Highlight significant differences and provide context.",
			Example: "Compare this quarter vs last quarter",
		},
		{
			ID:          "anomaly",
			Name:        "Anomaly",
			Description: "Outliers and unusual patterns worth executive attention.",
			Focus:       "outliers, unusual patterns, underperformance, overperformance",
			SystemPrompt: "You are identifying and explaining anomalies in retail business data.\n" +
				"Focus on: outliers, unusual patterns, underperformance, overperformance.\n" +
				"Provide statistical context (standard deviations, percentiles) when relevant.",
			Example: "Which stores are underperforming?",
		},
		{
			ID:          "drilldown",
			Name:        "Drill-down",
			Description: "Root-cause breakdowns of costs and revenue components.",
			Focus:       "cost drivers, revenue components, operational factors",
			SystemPrompt: "You are conducting a deep-dive analysis to understand root causes.\n" +
				"Focus on: cost drivers, revenue components, operational factors.\n" +
				"Break down complex metrics into understandable components.",
			Example: "What's driving high costs in Region X?",
		},
		{
			ID:          "general",
			Name:        "General",
			Description: "Open questions answered against the full data context.",
			Focus:       "overall business picture, follow-up questions",
			Example:     "Give me an overview of the business",
		},
	}
}
