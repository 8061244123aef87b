package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/ledger"
	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/wire"
)

// OrderHandler handles HTTP requests for order and position endpoints.
type OrderHandler struct {
	sessions *service.SessionService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(sessions *service.SessionService) *OrderHandler {
	return &OrderHandler{sessions: sessions}
}

// orderResponse is a single simulated order. Price is omitted for market
// orders; order_id is 0 until the order is acknowledged.
type orderResponse struct {
	TransactionID  int64  `json:"transaction_id"`
	OrderID        int64  `json:"order_id"`
	Security       string `json:"security"`
	Portfolio      string `json:"portfolio"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Price          string `json:"price,omitempty"`
	Volume         string `json:"volume"`
	FilledVolume   string `json:"filled_volume"`
	Balance        string `json:"balance"`
	State          string `json:"state"`
	RegisteredTime string `json:"registered_time"`
}

// orderListResponse is the JSON response for GET /sessions/{session_id}/orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// positionResponse is the account state of one (portfolio, security) pair.
type positionResponse struct {
	Portfolio     string `json:"portfolio"`
	Security      string `json:"security"`
	BeginValue    string `json:"begin_value"`
	CurrentValue  string `json:"current_value"`
	AveragePrice  string `json:"average_price"`
	BlockedValue  string `json:"blocked_value"`
	RealizedPnL   string `json:"realized_pnl"`
	UnrealizedPnL string `json:"unrealized_pnl"`
	Commission    string `json:"commission"`
}

// GetOrder handles GET /sessions/{session_id}/orders/{transaction_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	tx, err := strconv.ParseInt(chi.URLParam(r, "transaction_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "transaction_id must be a valid integer")
		return
	}

	order, err := sess.GetOrder(tx)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// ListOrders handles GET /sessions/{session_id}/orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	// Parse query params with defaults.
	var state *domain.OrderState
	if s := r.URL.Query().Get("state"); s != "" {
		st := domain.OrderState(s)
		state = &st
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	orders, total, err := sess.ListOrders(r.URL.Query().Get("portfolio"), state, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]orderResponse, len(orders))
	for i := range orders {
		summaries[i] = buildOrderResponse(&orders[i])
	}

	WriteJSON(w, http.StatusOK, orderListResponse{
		Orders: summaries,
		Total:  total,
		Page:   page,
		Limit:  limit,
	})
}

// Positions handles GET /sessions/{session_id}/positions.
func (h *OrderHandler) Positions(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	positions, err := sess.Positions(r.URL.Query().Get("portfolio"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]positionResponse, len(positions))
	for i, p := range positions {
		resp[i] = buildPositionResponse(p)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": resp})
}

func buildOrderResponse(o *domain.SimulatedOrder) orderResponse {
	resp := orderResponse{
		TransactionID:  o.TransactionID,
		OrderID:        o.OrderID,
		Security:       o.SecurityID.String(),
		Portfolio:      o.PortfolioName,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Volume:         domain.FormatDecimal(o.Volume),
		FilledVolume:   domain.FormatDecimal(o.FilledVolume()),
		Balance:        domain.FormatDecimal(o.Balance),
		State:          string(o.State),
		RegisteredTime: o.RegisteredTime.UTC().Format(wire.TimeLayout),
	}
	if o.Price != nil {
		resp.Price = domain.FormatDecimal(*o.Price)
	}
	return resp
}

func buildPositionResponse(p ledger.Position) positionResponse {
	return positionResponse{
		Portfolio:     p.PortfolioName,
		Security:      p.SecurityID.String(),
		BeginValue:    domain.FormatDecimal(p.BeginValue),
		CurrentValue:  domain.FormatDecimal(p.CurrentValue),
		AveragePrice:  domain.FormatDecimal(p.AveragePrice),
		BlockedValue:  domain.FormatDecimal(p.BlockedValue),
		RealizedPnL:   domain.FormatDecimal(p.RealizedPnL),
		UnrealizedPnL: domain.FormatDecimal(p.UnrealizedPnL),
		Commission:    domain.FormatDecimal(p.Commission),
	}
}
