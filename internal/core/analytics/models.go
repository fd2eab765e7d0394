package analytics

// Recognized spend-by-period intervals.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// DefaultWidgetOrder is served to users who never rearranged their dashboard.
var DefaultWidgetOrder = []string{
	"bill_stats",
	"total_spent",
	"expenses_by_category",
	"top_products",
	"most_expensive",
	"shopping_days",
}

// KnownWidgets enumerates every widget the dashboard can render.
var KnownWidgets = map[string]bool{
	"bill_stats":           true,
	"total_spent":          true,
	"spend_by_period":      true,
	"expenses_by_category": true,
	"top_products":         true,
	"most_expensive":       true,
	"shopping_days":        true,
	"receipts_by_date":     true,
	"products_by_category": true,
}

type PeriodSpend struct {
	Period string  `json:"period"`
	Total  float64 `json:"total"`
}

type SpendByPeriod struct {
	HasData  bool          `json:"has_data"`
	Currency string        `json:"currency"`
	Interval string        `json:"interval"`
	Points   []PeriodSpend `json:"points"`
}

type TotalSpent struct {
	HasData  bool    `json:"has_data"`
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
}

// Top-product ranking periods.
const (
	PeriodMonth = "month"
	PeriodYear  = "year"
	PeriodAll   = "all"
)

type ProductStat struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Category   string  `json:"category"`
}

type TopProducts struct {
	HasData       bool          `json:"has_data"`
	Period        string        `json:"period"`
	TotalReceipts int           `json:"total_receipts"`
	Products      []ProductStat `json:"products"`
}

type ExpensiveProduct struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Date      string  `json:"date"`
	StoreName string  `json:"store_name,omitempty"`
}

type MostExpensive struct {
	HasData  bool              `json:"has_data"`
	Currency string            `json:"currency"`
	Product  *ExpensiveProduct `json:"product"`
}

type CategorySpend struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

type ExpensesByCategory struct {
	HasData    bool            `json:"has_data"`
	Currency   string          `json:"currency"`
	Categories []CategorySpend `json:"categories"`
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ReceiptsByDate struct {
	HasData bool        `json:"has_data"`
	Points  []DateCount `json:"points"`
}

type CategoryProducts struct {
	Category string   `json:"category"`
	Products []string `json:"products"`
}

type ProductsByCategory struct {
	HasData    bool               `json:"has_data"`
	Categories []CategoryProducts `json:"categories"`
}

type WeekdayCount struct {
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

type ShoppingDays struct {
	HasData bool           `json:"has_data"`
	Days    []WeekdayCount `json:"days"`
}

// BillStats summarizes the last 30 days of bills. AverageBillDelta is the
// change in average bill against the 30 days before, present only when both
// windows contain receipts.
type BillStats struct {
	HasData          bool     `json:"has_data"`
	Currency         string   `json:"currency"`
	TotalReceipts    int      `json:"total_receipts"`
	AverageBill      float64  `json:"average_bill"`
	AverageBillDelta *float64 `json:"average_bill_delta"`
}
