// Package insight turns the computed KPIs into text: the data-context
// block merged into every model question, the general system prompt,
// and the deterministic fallback answers served when the model is
// unreachable.
package insight

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/intent"
	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
)

// Service composes markdown summaries and answers from the metrics
// calculator. Stateless.
type Service struct {
	calc *metrics.Calculator
	data metrics.Data
}

// NewService wires the insight service to its data source.
func NewService(calc *metrics.Calculator, data metrics.Data) *Service {
	return &Service{calc: calc, data: data}
}

// Context describes the loaded data at a glance, feeding the general
// system prompt.
type Context struct {
	TotalStores    int
	TotalProducts  int
	Regions        []string
	DateRange      string
	InventoryItems int
}

// Context derives the dataset overview: distinct stores, products,
// regions, transaction date range and inventory size.
func (s *Service) Context() Context {
	ctx := Context{}

	stores := make(map[string]struct{})
	var minDate, maxDate time.Time
	for _, t := range s.data.StoreTransactions() {
		stores[t.StoreID] = struct{}{}
		if t.Date.IsZero() {
			continue
		}
		if minDate.IsZero() || t.Date.Before(minDate) {
			minDate = t.Date
		}
		if maxDate.IsZero() || t.Date.After(maxDate) {
			maxDate = t.Date
		}
	}
	ctx.TotalStores = len(stores)
	if !minDate.IsZero() {
		ctx.DateRange = fmt.Sprintf("%s to %s", minDate.Format("2006-01-02"), maxDate.Format("2006-01-02"))
	}

	products := make(map[string]struct{})
	seenRegion := make(map[string]struct{})
	for _, sale := range s.data.RegionSales() {
		products[sale.Product] = struct{}{}
		if _, ok := seenRegion[sale.Region]; !ok {
			seenRegion[sale.Region] = struct{}{}
			ctx.Regions = append(ctx.Regions, sale.Region)
		}
	}
	ctx.TotalProducts = len(products)
	ctx.InventoryItems = len(s.data.Inventory())

	return ctx
}

// GeneralSystemPrompt frames the model for open questions with the live
// dataset context. Typed questions use the static mode prompts instead.
func (s *Service) GeneralSystemPrompt() string {
	ctx := s.Context()

	dateRange := ctx.DateRange
	if dateRange == "" {
		dateRange = "N/A"
	}

	return fmt.Sprintf(`You are an expert retail analytics assistant helping C-suite executives analyze business data.

**Available Data Context:**
- Total Stores: %d
- Total Products: %d
- Regions: %s
- Date Range: %s
- Available Metrics: Revenue, Costs, Profit Margins, Inventory, Customer Satisfaction

**Data Columns Available:**
- Store Transactions: Date, StoreID, Location, Product, Quantity, UnitPrice, TotalPrice, PaymentType
- Product Sales by Region: Date, Region, Product, Quantity, UnitPrice, TotalPrice, UnitCost, Discount
- Inventory: ProductID, ProductName, QuantityInStock, ReorderPoint, UnitCost
- Customer Data: CustomerID, Product, PurchaseDate, TotalPrice, ReviewRating

**Your Role:**
1. Understand the executive's question
2. Determine what data analysis is needed
3. Provide clear, actionable insights
4. Use business language appropriate for C-suite executives

**Response Format:**
- Be concise and data-driven
- Include specific numbers and percentages
- Highlight key insights and recommendations
- Use markdown formatting for clarity`,
		ctx.TotalStores, ctx.TotalProducts, strings.Join(ctx.Regions, ", "), dateRange)
}

// DataSummary builds the markdown data block merged into each outgoing
// question: store performance with top and bottom stores, the regional
// table, inventory status, and customer metrics.
func (s *Service) DataSummary() string {
	var parts []string

	revenue := s.calc.Revenue()
	stores := s.calc.StorePerformance()
	if len(stores) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "**Store Performance:**\n")
		fmt.Fprintf(&b, "- Total Revenue: $%s\n", formatMoney(revenue.StoreRevenue))
		fmt.Fprintf(&b, "- Total Transactions: %s\n", formatCount(revenue.TransactionCount))
		fmt.Fprintf(&b, "- Average Transaction: $%.2f\n", revenue.AvgTransaction)

		b.WriteString("\nTop 3 Stores by Revenue:\n")
		writeStoreRows(&b, topN(stores, 3))

		b.WriteString("\nBottom 3 Stores by Revenue:\n")
		writeStoreRows(&b, bottomN(stores, 3))

		parts = append(parts, b.String())
	}

	regions := s.calc.RegionalPerformance()
	if len(regions) > 0 {
		var b strings.Builder
		b.WriteString("**Regional Performance:**\n")
		for _, r := range regions {
			fmt.Fprintf(&b, "- %s: revenue $%s, quantity %s\n", r.Region, formatMoney(r.Revenue), formatCount(int(r.Quantity)))
		}
		parts = append(parts, b.String())
	}

	items := s.data.Inventory()
	if len(items) > 0 {
		belowReorder := 0
		for _, item := range items {
			if item.QuantityInStock < item.ReorderPoint {
				belowReorder++
			}
		}
		inv := s.calc.Inventory()
		parts = append(parts, fmt.Sprintf("**Inventory Status:**\n- Total Items: %d\n- Low Stock Items: %d\n- Average Stock Level: %.0f\n",
			len(items), belowReorder, inv.AvgStockLevel))
	}

	customers := s.calc.Customers()
	if customers.CustomerCount > 0 {
		parts = append(parts, fmt.Sprintf("**Customer Metrics:**\n- Average Rating: %.2f/5.0\n- Total Customers: %d\n",
			customers.AvgSatisfaction, customers.CustomerCount))
	}

	return strings.Join(parts, "\n")
}

// Fallback produces a deterministic markdown answer for the question's
// analysis angle, used when no model is reachable.
func (s *Service) Fallback(label intent.Label) string {
	switch label {
	case intent.Anomaly:
		return s.underperformingStores()
	case intent.Drilldown:
		return s.regionalCosts()
	case intent.Comparison:
		return s.profitLeaders()
	default:
		return s.topStores()
	}
}

func (s *Service) topStores() string {
	stores := topN(s.calc.StorePerformance(), 3)
	if len(stores) == 0 {
		return "No store transaction data is loaded."
	}

	var b strings.Builder
	b.WriteString("**Top Performing Stores:**\n")
	for i, st := range stores {
		fmt.Fprintf(&b, "%d. Store %s: $%s across %s transactions\n",
			i+1, st.StoreID, formatMoney(st.TotalRevenue), formatCount(st.TransactionCount))
	}
	return b.String()
}

func (s *Service) underperformingStores() string {
	stores := s.calc.StorePerformance()
	if len(stores) == 0 {
		return "No store transaction data is loaded."
	}

	var b strings.Builder
	b.WriteString("**Underperforming Stores (bottom 3 by revenue):**\n")
	for i, st := range bottomN(stores, 3) {
		fmt.Fprintf(&b, "%d. Store %s: $%s\n", i+1, st.StoreID, formatMoney(st.TotalRevenue))
	}

	if anomalies := s.calc.DetectAnomalies(metrics.DefaultAnomalyThreshold); len(anomalies) > 0 {
		b.WriteString("\n**Detected Anomalies:**\n")
		for _, a := range anomalies {
			fmt.Fprintf(&b, "- [%s] %s\n", a.Severity, a.Message)
		}
	}
	return b.String()
}

func (s *Service) regionalCosts() string {
	regions := s.calc.RegionalPerformance()
	if len(regions) == 0 {
		return "No regional sales data is loaded."
	}

	var b strings.Builder
	b.WriteString("**Regional Cost Breakdown:**\n")
	for _, r := range regions {
		fmt.Fprintf(&b, "- %s: cost $%s against revenue $%s (margin %.2f%%)\n",
			r.Region, formatMoney(r.Cost), formatMoney(r.Revenue), r.MarginPct)
	}
	return b.String()
}

func (s *Service) profitLeaders() string {
	regions := s.calc.RegionalPerformance()
	if len(regions) == 0 {
		return "No regional sales data is loaded."
	}

	best := regions[0]
	for _, r := range regions[1:] {
		if r.Profit > best.Profit {
			best = r
		}
	}

	var b strings.Builder
	b.WriteString("**Profit Leaders by Region:**\n")
	for _, r := range regions {
		fmt.Fprintf(&b, "- %s: profit $%s (margin %.2f%%)\n", r.Region, formatMoney(r.Profit), r.MarginPct)
	}
	fmt.Fprintf(&b, "\n%s leads on absolute profit.\n", best.Region)
	return b.String()
}

func writeStoreRows(b *strings.Builder, rows []metrics.StorePerformance) {
	for _, st := range rows {
		fmt.Fprintf(b, "- %s: $%s (avg $%.2f, %s transactions)\n",
			st.StoreID, formatMoney(st.TotalRevenue), st.AvgTransaction, formatCount(st.TransactionCount))
	}
}

func topN(rows []metrics.StorePerformance, n int) []metrics.StorePerformance {
	if len(rows) < n {
		n = len(rows)
	}
	return rows[:n]
}

// bottomN returns the lowest-revenue rows, worst first.
func bottomN(rows []metrics.StorePerformance, n int) []metrics.StorePerformance {
	if len(rows) < n {
		n = len(rows)
	}
	out := make([]metrics.StorePerformance, 0, n)
	for i := len(rows) - 1; i >= len(rows)-n; i-- {
		out = append(out, rows[i])
	}
	return out
}

// formatMoney renders a dollar amount with thousands separators and two
// decimals, matching the dashboards' number style.
func formatMoney(v float64) string {
	return groupThousands(fmt.Sprintf("%.2f", v))
}

func formatCount(v int) string {
	return groupThousands(fmt.Sprintf("%d", v))
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}

	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
