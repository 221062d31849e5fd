// Package dataset loads the five retail Excel workbooks the dashboard
// is built on and exposes them as typed tables. Workbooks are
// fingerprinted at load so a reload can skip files that have not
// changed on disk.
package dataset

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zeebo/blake3"
)

// Loader holds the parsed datasets. Reads and reloads are guarded by a
// RWMutex so the live feed can refresh data while handlers read it.
type Loader struct {
	mu       sync.RWMutex
	manifest Manifest

	customers         []CustomerPurchase
	inventory         []InventoryItem
	onlineOrders      OnlineOrders
	regionSales       []RegionSale
	storeTransactions []StoreTransaction

	// columns as they appeared in each workbook's header row
	columns map[string][]string
	// workbook file -> BLAKE3 digest of its bytes at last load
	fingerprints map[string][32]byte
}

// Load reads all five workbooks named by the manifest. Every workbook
// is required; a missing file is a startup error.
func Load(manifest Manifest) (*Loader, error) {
	l := &Loader{
		manifest:     manifest,
		columns:      make(map[string][]string),
		fingerprints: make(map[string][32]byte),
	}
	if err := l.loadAll(false); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads workbooks whose on-disk bytes changed since the last
// load, leaving unchanged datasets untouched. It returns the number of
// workbooks that were re-parsed.
func (l *Loader) Reload() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadChangedLocked()
}

func (l *Loader) loadAll(skipUnchanged bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if skipUnchanged {
		_, err := l.reloadChangedLocked()
		return err
	}

	for _, w := range l.workbooks() {
		if err := l.loadWorkbookLocked(w); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) reloadChangedLocked() (int, error) {
	changed := 0
	for _, w := range l.workbooks() {
		raw, err := os.ReadFile(l.manifest.path(w.spec))
		if err != nil {
			return changed, fmt.Errorf("dataset: reading %s: %w", w.name, err)
		}
		sum := blake3.Sum256(raw)
		if sum == l.fingerprints[w.spec.File] {
			continue
		}
		if err := l.parseWorkbookLocked(w, raw, sum); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

type workbook struct {
	name  string
	spec  WorkbookSpec
	parse func(header []string, rows [][]string) error
}

func (l *Loader) workbooks() []workbook {
	return []workbook{
		{"customers", l.manifest.Customers, l.parseCustomers},
		{"inventory", l.manifest.Inventory, l.parseInventory},
		{"online_orders", l.manifest.OnlineOrders, l.parseOnlineOrders},
		{"product_sales", l.manifest.ProductSales, l.parseRegionSales},
		{"store_transactions", l.manifest.StoreTransactions, l.parseStoreTransactions},
	}
}

func (l *Loader) loadWorkbookLocked(w workbook) error {
	raw, err := os.ReadFile(l.manifest.path(w.spec))
	if err != nil {
		return fmt.Errorf("dataset: reading %s: %w", w.name, err)
	}
	return l.parseWorkbookLocked(w, raw, blake3.Sum256(raw))
}

func (l *Loader) parseWorkbookLocked(w workbook, raw []byte, sum [32]byte) error {
	file, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("dataset: opening %s: %w", w.name, err)
	}
	defer file.Close()

	sheet := w.spec.Sheet
	if sheet == "" {
		sheet = file.GetSheetName(0)
	}

	rows, err := file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("dataset: reading sheet %q of %s: %w", sheet, w.name, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("dataset: workbook %s has no header row", w.name)
	}

	header := rows[0]
	if err := w.parse(header, rows[1:]); err != nil {
		return err
	}

	l.columns[w.name] = append([]string(nil), header...)
	l.fingerprints[w.spec.File] = sum
	return nil
}

func (l *Loader) parseStoreTransactions(header []string, rows [][]string) error {
	idx := headerIndex(header)
	out := make([]StoreTransaction, 0, len(rows))
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		out = append(out, StoreTransaction{
			Date:        cellTime(row, idx, "date"),
			StoreID:     cellString(row, idx, "storeid"),
			Location:    cellString(row, idx, "location"),
			Product:     cellString(row, idx, "product"),
			Quantity:    cellFloat(row, idx, "quantity"),
			UnitPrice:   cellFloat(row, idx, "unitprice"),
			TotalPrice:  cellFloat(row, idx, "totalprice"),
			PaymentType: cellString(row, idx, "paymenttype"),
		})
	}
	l.storeTransactions = out
	return nil
}

func (l *Loader) parseRegionSales(header []string, rows [][]string) error {
	idx := headerIndex(header)
	out := make([]RegionSale, 0, len(rows))
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		out = append(out, RegionSale{
			Date:       cellTime(row, idx, "date"),
			Region:     cellString(row, idx, "region"),
			Product:    cellString(row, idx, "product"),
			Quantity:   cellFloat(row, idx, "quantity"),
			UnitPrice:  cellFloat(row, idx, "unitprice"),
			TotalPrice: cellFloat(row, idx, "totalprice"),
			UnitCost:   cellFloat(row, idx, "unitcost"),
			Discount:   cellFloat(row, idx, "discount"),
		})
	}
	l.regionSales = out
	return nil
}

func (l *Loader) parseInventory(header []string, rows [][]string) error {
	idx := headerIndex(header)
	out := make([]InventoryItem, 0, len(rows))
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		out = append(out, InventoryItem{
			ProductID:       cellString(row, idx, "productid"),
			ProductName:     cellString(row, idx, "productname"),
			QuantityInStock: cellFloat(row, idx, "quantityinstock"),
			ReorderPoint:    cellFloat(row, idx, "reorderpoint"),
			UnitCost:        cellFloat(row, idx, "unitcost"),
		})
	}
	l.inventory = out
	return nil
}

func (l *Loader) parseCustomers(header []string, rows [][]string) error {
	idx := headerIndex(header)
	out := make([]CustomerPurchase, 0, len(rows))
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		out = append(out, CustomerPurchase{
			CustomerID:   cellString(row, idx, "customerid"),
			Product:      cellString(row, idx, "product"),
			PurchaseDate: cellTime(row, idx, "purchasedate"),
			TotalPrice:   cellFloat(row, idx, "totalprice"),
			ReviewRating: cellFloat(row, idx, "reviewrating"),
		})
	}
	l.customers = out
	return nil
}

func (l *Loader) parseOnlineOrders(header []string, rows [][]string) error {
	orders := OnlineOrders{Columns: append([]string(nil), header...)}

	// The first column mentioning price/total/amount is the revenue
	// column, matching how the original extract was consumed.
	revenueIdx := -1
	for i, col := range header {
		lower := strings.ToLower(col)
		if strings.Contains(lower, "price") || strings.Contains(lower, "total") || strings.Contains(lower, "amount") {
			revenueIdx = i
			orders.RevenueColumn = col
			break
		}
	}

	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		orders.RowCount++
		if revenueIdx >= 0 && revenueIdx < len(row) {
			orders.Revenue = append(orders.Revenue, parseNumber(row[revenueIdx]))
		}
	}

	l.onlineOrders = orders
	return nil
}

// StoreTransactions returns the store transaction rows. The slice is
// shared; callers must treat it as read-only.
func (l *Loader) StoreTransactions() []StoreTransaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.storeTransactions
}

// RegionSales returns the product sales by region rows.
func (l *Loader) RegionSales() []RegionSale {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.regionSales
}

// Inventory returns the inventory tracking rows.
func (l *Loader) Inventory() []InventoryItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inventory
}

// Customers returns the customer purchase history rows.
func (l *Loader) Customers() []CustomerPurchase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.customers
}

// OnlineOrders returns the online orders extract.
func (l *Loader) OnlineOrders() OnlineOrders {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.onlineOrders
}

// Summary reports each dataset's shape and columns in a stable order.
func (l *Loader) Summary() []Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return []Summary{
		summaryFor("customers", len(l.customers), l.columns["customers"]),
		summaryFor("inventory", len(l.inventory), l.columns["inventory"]),
		summaryFor("online_orders", l.onlineOrders.RowCount, l.columns["online_orders"]),
		summaryFor("product_sales", len(l.regionSales), l.columns["product_sales"]),
		summaryFor("store_transactions", len(l.storeTransactions), l.columns["store_transactions"]),
	}
}

func summaryFor(name string, rows int, columns []string) Summary {
	return Summary{
		Name:    name,
		Rows:    rows,
		Columns: len(columns),
		Fields:  append([]string(nil), columns...),
	}
}

// headerIndex maps normalized column names (lowercased, spaces and
// underscores stripped) to their positions.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		key = strings.ReplaceAll(key, " ", "")
		key = strings.ReplaceAll(key, "_", "")
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cellString(row []string, idx map[string]int, key string) string {
	i, ok := idx[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func cellFloat(row []string, idx map[string]int, key string) float64 {
	return parseNumber(cellString(row, idx, key))
}

// parseNumber is deliberately forgiving: currency symbols, thousands
// separators and surrounding whitespace are stripped before parsing.
// Unparseable cells count as zero.
func parseNumber(raw string) float64 {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0
	}
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return val
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"01-02-06",
	"1/2/06 15:04",
	time.RFC3339,
}

func cellTime(row []string, idx map[string]int, key string) time.Time {
	raw := cellString(row, idx, key)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
