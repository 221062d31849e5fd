package dataset

import "time"

// StoreTransaction is one row of the retail store transactions workbook.
type StoreTransaction struct {
	Date        time.Time
	StoreID     string
	Location    string
	Product     string
	Quantity    float64
	UnitPrice   float64
	TotalPrice  float64
	PaymentType string
}

// RegionSale is one row of the product sales by region workbook.
type RegionSale struct {
	Date       time.Time
	Region     string
	Product    string
	Quantity   float64
	UnitPrice  float64
	TotalPrice float64
	UnitCost   float64
	Discount   float64
}

// InventoryItem is one row of the inventory tracking workbook.
type InventoryItem struct {
	ProductID       string
	ProductName     string
	QuantityInStock float64
	ReorderPoint    float64
	UnitCost        float64
}

// CustomerPurchase is one row of the customer purchase history workbook.
type CustomerPurchase struct {
	CustomerID   string
	Product      string
	PurchaseDate time.Time
	TotalPrice   float64
	ReviewRating float64
}

// OnlineOrders holds the online store orders workbook in generic form:
// the schema of that extract varies, so the first column whose name
// mentions price, total or amount is treated as the revenue column.
type OnlineOrders struct {
	Columns       []string
	RowCount      int
	RevenueColumn string
	Revenue       []float64
}

// Summary reports one dataset's shape and column names, the "Data
// Overview" contract the dashboard sidebar renders.
type Summary struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Columns int      `json:"columns"`
	Fields  []string `json:"fields"`
}
