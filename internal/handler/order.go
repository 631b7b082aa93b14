package handler

import (
	"net/http"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	placement    *service.PlacementService
	cancellation *service.CancellationService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(placement *service.PlacementService, cancellation *service.CancellationService) *OrderHandler {
	return &OrderHandler{placement: placement, cancellation: cancellation}
}

// placeOrderRequest is the JSON request body for POST /accounts/{account_id}/orders.
type placeOrderRequest struct {
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	ExecKind   string              `json:"exec_kind"`
	Quantity   int64               `json:"quantity"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
}

type stopLossRequest struct {
	Symbol       string              `json:"symbol"`
	Quantity     int64               `json:"quantity"`
	TriggerPrice decimal.NullDecimal `json:"trigger_price"`
}

type bracketRequest struct {
	Symbol        string              `json:"symbol"`
	Quantity      int64               `json:"quantity"`
	EntryPrice    decimal.NullDecimal `json:"entry_price"`
	TargetPrice   decimal.NullDecimal `json:"target_price"`
	StopLossPrice decimal.NullDecimal `json:"stop_loss_price"`
}

// orderResponse is the JSON view of an order. Price fields that do not
// apply to the order are null.
type orderResponse struct {
	OrderID        string              `json:"order_id"`
	AccountID      string              `json:"account_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	ExecKind       string              `json:"exec_kind"`
	Category       string              `json:"category"`
	Quantity       int64               `json:"quantity"`
	Price          decimal.Decimal     `json:"price"`
	LimitPrice     decimal.NullDecimal `json:"limit_price"`
	StopLossPrice  decimal.NullDecimal `json:"stop_loss_price"`
	TargetPrice    decimal.NullDecimal `json:"target_price"`
	ExecutionPrice decimal.NullDecimal `json:"execution_price"`
	ParentOrderID  *string             `json:"parent_order_id"`
	Status         string              `json:"status"`
	CancelReason   *string             `json:"cancel_reason"`
	CreatedAt      string              `json:"created_at"`
	ExecutedAt     *string             `json:"executed_at"`
	CancelledAt    *string             `json:"cancelled_at"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
}

type cancellationResponse struct {
	OrderID          string              `json:"order_id"`
	Symbol           string              `json:"symbol"`
	Side             string              `json:"side"`
	Quantity         int64               `json:"quantity"`
	Status           string              `json:"status"`
	RefundedAmount   decimal.NullDecimal `json:"refunded_amount"`
	ReturnedQuantity int64               `json:"returned_quantity"`
	CancelledAt      string              `json:"cancelled_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func buildOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
		OrderID:        o.ID,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		ExecKind:       string(o.ExecKind),
		Category:       string(o.Category),
		Quantity:       o.Quantity,
		Price:          o.Price,
		LimitPrice:     o.LimitPrice,
		StopLossPrice:  o.StopLossPrice,
		TargetPrice:    o.TargetPrice,
		ExecutionPrice: o.ExecutionPrice,
		ParentOrderID:  optional(o.ParentOrderID),
		Status:         string(o.Status),
		CancelReason:   optional(o.CancelReason),
		CreatedAt:      formatTime(o.CreatedAt),
		ExecutedAt:     formatTimePtr(o.ExecutedAt),
		CancelledAt:    formatTimePtr(o.CancelledAt),
	}
}

// Place handles POST /accounts/{account_id}/orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.placement.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		AccountID:  chi.URLParam(r, "account_id"),
		Symbol:     req.Symbol,
		Side:       domain.Side(req.Side),
		ExecKind:   domain.ExecKind(req.ExecKind),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(o))
}

// PlaceStopLoss handles POST /accounts/{account_id}/orders/stop-loss.
func (h *OrderHandler) PlaceStopLoss(w http.ResponseWriter, r *http.Request) {
	var req stopLossRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.placement.PlaceStopLoss(r.Context(), service.StopLossRequest{
		AccountID:    chi.URLParam(r, "account_id"),
		Symbol:       req.Symbol,
		Quantity:     req.Quantity,
		TriggerPrice: req.TriggerPrice,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(o))
}

// PlaceBracket handles POST /accounts/{account_id}/orders/bracket.
func (h *OrderHandler) PlaceBracket(w http.ResponseWriter, r *http.Request) {
	var req bracketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.placement.PlaceBracket(r.Context(), service.BracketRequest{
		AccountID:     chi.URLParam(r, "account_id"),
		Symbol:        req.Symbol,
		Quantity:      req.Quantity,
		EntryPrice:    req.EntryPrice,
		TargetPrice:   req.TargetPrice,
		StopLossPrice: req.StopLossPrice,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOrderResponse(o))
}

// Get handles GET /accounts/{account_id}/orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.placement.GetOrder(r.Context(), chi.URLParam(r, "account_id"), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(o))
}

// List handles GET /accounts/{account_id}/orders. The optional status
// query parameter filters by order status.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.placement.ListOrders(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := domain.OrderStatus(r.URL.Query().Get("status"))
	resp := orderListResponse{Orders: make([]orderResponse, 0, len(orders))}
	for _, o := range orders {
		if status != "" && o.Status != status {
			continue
		}
		resp.Orders = append(resp.Orders, buildOrderResponse(o))
	}
	resp.Total = len(resp.Orders)
	WriteJSON(w, http.StatusOK, resp)
}

// Cancel handles DELETE /accounts/{account_id}/orders/{order_id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	rc, err := h.cancellation.CancelOrder(r.Context(), chi.URLParam(r, "account_id"), chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, cancellationResponse{
		OrderID:          rc.OrderID,
		Symbol:           rc.Symbol,
		Side:             string(rc.Side),
		Quantity:         rc.Quantity,
		Status:           string(rc.Status),
		RefundedAmount:   rc.RefundedAmount,
		ReturnedQuantity: rc.ReturnedQuantity,
		CancelledAt:      formatTime(rc.CancelledAt),
	})
}
