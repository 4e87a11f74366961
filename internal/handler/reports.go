package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/servizo/api/internal/database"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetDailySales(ctx context.Context, arg database.SalesRangeParams) ([]database.GetDailySalesRow, error)
	GetHourlySales(ctx context.Context, arg database.SalesRangeParams) ([]database.GetHourlySalesRow, error)
	GetItemSales(ctx context.Context, arg database.GetItemSalesParams) ([]database.GetItemSalesRow, error)
	GetPaymentSummary(ctx context.Context, arg database.GetPaymentSummaryParams) ([]database.GetPaymentSummaryRow, error)
}

// ReportsHandler handles sales report endpoints. Days and hours are
// bucketed in the restaurant's time zone.
type ReportsHandler struct {
	store ReportsStore
	loc   *time.Location
}

// NewReportsHandler creates a new ReportsHandler. A nil location means UTC.
func NewReportsHandler(store ReportsStore, loc *time.Location) *ReportsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportsHandler{store: store, loc: loc}
}

// RegisterRoutes registers report endpoints.
// Expected to be mounted at /reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily-sales", h.DailySales)
	r.Get("/hourly-sales", h.HourlySales)
	r.Get("/item-sales", h.ItemSales)
	r.Get("/payment-summary", h.PaymentSummary)
}

// --- Response types ---

type dailySalesResponse struct {
	Date         string `json:"date"`
	OrderCount   int64  `json:"order_count"`
	TotalRevenue string `json:"total_revenue"`
}

type hourlySalesResponse struct {
	Hour         int32  `json:"hour"`
	OrderCount   int64  `json:"order_count"`
	TotalRevenue string `json:"total_revenue"`
}

type itemSalesResponse struct {
	ItemID       uuid.UUID `json:"item_id"`
	ItemName     string    `json:"item_name"`
	QuantitySold int64     `json:"quantity_sold"`
}

type paymentSummaryResponse struct {
	Status           database.PaymentStatus `json:"status"`
	TransactionCount int64                  `json:"transaction_count"`
	TotalCents       int64                  `json:"total_cents"`
}

// --- Handlers ---

// DailySales returns per-day totals of paid orders for a date range.
func (h *ReportsHandler) DailySales(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.loc, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.store.GetDailySales(r.Context(), database.SalesRangeParams{From: from, To: to, Timezone: h.loc.String()})
	if err != nil {
		log.Printf("ERROR: get daily sales: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]dailySalesResponse, len(rows))
	for i, row := range rows {
		date := "N/A"
		if row.SaleDate.Valid {
			date = row.SaleDate.Time.Format("2006-01-02")
		}
		resp[i] = dailySalesResponse{
			Date:         date,
			OrderCount:   row.OrderCount,
			TotalRevenue: numericToString(row.TotalRevenue),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HourlySales returns paid orders per hour of day for peak analysis.
func (h *ReportsHandler) HourlySales(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.loc, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.store.GetHourlySales(r.Context(), database.SalesRangeParams{From: from, To: to, Timezone: h.loc.String()})
	if err != nil {
		log.Printf("ERROR: get hourly sales: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]hourlySalesResponse, len(rows))
	for i, row := range rows {
		resp[i] = hourlySalesResponse{
			Hour:         row.Hour,
			OrderCount:   row.OrderCount,
			TotalRevenue: numericToString(row.TotalRevenue),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ItemSales returns the best selling items by units in paid orders.
func (h *ReportsHandler) ItemSales(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.loc, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := h.store.GetItemSales(r.Context(), database.GetItemSalesParams{From: from, To: to, Limit: int32(limit)})
	if err != nil {
		log.Printf("ERROR: get item sales: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]itemSalesResponse, len(rows))
	for i, row := range rows {
		resp[i] = itemSalesResponse{
			ItemID:       row.ItemID,
			ItemName:     row.ItemName,
			QuantitySold: row.QuantitySold,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaymentSummary returns card payment attempts grouped by outcome.
func (h *ReportsHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r, h.loc, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.store.GetPaymentSummary(r.Context(), database.GetPaymentSummaryParams{From: from, To: to})
	if err != nil {
		log.Printf("ERROR: get payment summary: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]paymentSummaryResponse, len(rows))
	for i, row := range rows {
		resp[i] = paymentSummaryResponse{
			Status:           row.Status,
			TransactionCount: row.TransactionCount,
			TotalCents:       row.TotalCents,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// parseDateRange parses start_date and end_date (YYYY-MM-DD) in loc.
// Defaults to the last 30 days. The returned end is exclusive: midnight
// after end_date.
func parseDateRange(r *http.Request, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	const layout = "2006-01-02"

	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -30)
	end := today.AddDate(0, 0, 1)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format: %w", err)
		}
		start = t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format: %w", err)
		}
		end = t.AddDate(0, 0, 1)
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date must not be after end_date")
	}
	return start, end, nil
}
