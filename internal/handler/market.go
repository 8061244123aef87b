package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/wire"
)

// defaultPriceWindow is the VWAP window used when none is requested.
const defaultPriceWindow = 5 * time.Minute

// MarketHandler handles HTTP requests for book endpoints.
type MarketHandler struct {
	sessions *service.SessionService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(sessions *service.SessionService) *MarketHandler {
	return &MarketHandler{sessions: sessions}
}

// priceResponse is the JSON response for GET .../books/{security}/price.
type priceResponse struct {
	Security     string  `json:"security"`
	CurrentPrice *string `json:"current_price"`
	Window       string  `json:"window"`
	TradesInWin  int     `json:"trades_in_window"`
	LastTradeAt  *string `json:"last_trade_at"`
}

// levelResponse is a single price level.
type levelResponse struct {
	Price     string `json:"price"`
	Volume    string `json:"volume,omitempty"`
	Unbounded bool   `json:"unbounded,omitempty"`
}

// bookResponse is the JSON response for GET .../books/{security}.
type bookResponse struct {
	Security   string          `json:"security"`
	Bids       []levelResponse `json:"bids"`
	Asks       []levelResponse `json:"asks"`
	Spread     *string         `json:"spread"`
	SnapshotAt string          `json:"snapshot_at"`
}

// estimateResponse is the JSON response for GET .../books/{security}/estimate.
type estimateResponse struct {
	Security          string          `json:"security"`
	Side              string          `json:"side"`
	VolumeRequested   string          `json:"volume_requested"`
	VolumeAvailable   string          `json:"volume_available"`
	FullyFillable     bool            `json:"fully_fillable"`
	EstimatedAvgPrice *string         `json:"estimated_average_price"`
	EstimatedTotal    *string         `json:"estimated_total"`
	PriceLevels       []levelResponse `json:"price_levels"`
	EstimatedAt       string          `json:"estimated_at"`
}

// GetPrice handles GET /sessions/{session_id}/books/{security}/price.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	sess, security, ok := h.resolve(w, r)
	if !ok {
		return
	}

	window := defaultPriceWindow
	if v := r.URL.Query().Get("window"); v != "" {
		var err error
		window, err = time.ParseDuration(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "window must be a valid duration")
			return
		}
	}

	price, err := sess.GetPrice(security, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := priceResponse{
		Security:     price.SecurityID.String(),
		CurrentPrice: formatOptional(price.CurrentPrice),
		Window:       price.Window,
		TradesInWin:  price.TradesInWindow,
	}
	if price.LastTradeAt != nil {
		s := price.LastTradeAt.UTC().Format(wire.TimeLayout)
		resp.LastTradeAt = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetBook handles GET /sessions/{session_id}/books/{security}.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	sess, security, ok := h.resolve(w, r)
	if !ok {
		return
	}

	// Parse depth query param (default 10, max 50).
	depth, err := queryInt(r, "depth", 10)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	book, err := sess.GetBook(security, depth)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		Security:   book.SecurityID.String(),
		Bids:       buildLevels(book.Bids),
		Asks:       buildLevels(book.Asks),
		Spread:     formatOptional(book.Spread),
		SnapshotAt: book.SnapshotAt.UTC().Format(wire.TimeLayout),
	})
}

// Estimate handles GET /sessions/{session_id}/books/{security}/estimate.
func (h *MarketHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	sess, security, ok := h.resolve(w, r)
	if !ok {
		return
	}

	side := r.URL.Query().Get("side")
	volume, err := domain.ParseDecimal(r.URL.Query().Get("volume"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "volume must be a positive decimal")
		return
	}

	est, err := sess.Estimate(security, domain.Side(side), volume)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	levels := make([]levelResponse, len(est.Levels))
	for i, l := range est.Levels {
		levels[i] = levelResponse{
			Price:  domain.FormatDecimal(l.Price),
			Volume: domain.FormatDecimal(l.Volume),
		}
	}

	WriteJSON(w, http.StatusOK, estimateResponse{
		Security:          est.SecurityID.String(),
		Side:              string(est.Side),
		VolumeRequested:   domain.FormatDecimal(est.VolumeRequested),
		VolumeAvailable:   domain.FormatDecimal(est.VolumeAvailable),
		FullyFillable:     est.FullyFillable,
		EstimatedAvgPrice: formatOptional(est.AveragePrice),
		EstimatedTotal:    formatOptional(est.Total),
		PriceLevels:       levels,
		EstimatedAt:       est.EstimatedAt.UTC().Format(wire.TimeLayout),
	})
}

// resolve looks up the session and parses the security URL parameter.
func (h *MarketHandler) resolve(w http.ResponseWriter, r *http.Request) (*service.Session, domain.SecurityID, bool) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return nil, domain.SecurityID{}, false
	}
	security, err := domain.ParseSecurityID(chi.URLParam(r, "security"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return nil, domain.SecurityID{}, false
	}
	return sess, security, true
}

func buildLevels(levels []engine.Level) []levelResponse {
	out := make([]levelResponse, len(levels))
	for i, l := range levels {
		out[i] = levelResponse{Price: domain.FormatDecimal(l.Price), Unbounded: l.Unbounded}
		if !l.Unbounded {
			out[i].Volume = domain.FormatDecimal(l.Volume)
		}
	}
	return out
}

func formatOptional(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := domain.FormatDecimal(*d)
	return &s
}
