package handler

import (
	"context"
	"net/http"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AccountHandler handles HTTP requests for account funds and portfolio.
type AccountHandler struct {
	funds *service.FundsService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(funds *service.FundsService) *AccountHandler {
	return &AccountHandler{funds: funds}
}

type openAccountRequest struct {
	AccountID   string          `json:"account_id"`
	InitialCash decimal.Decimal `json:"initial_cash"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type accountResponse struct {
	AccountID   string          `json:"account_id"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type positionResponse struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
	IsShort     bool            `json:"is_short"`
	UpdatedAt   string          `json:"updated_at"`
}

type positionListResponse struct {
	AccountID string             `json:"account_id"`
	Positions []positionResponse `json:"positions"`
}

func buildAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		AccountID:   a.ID,
		CashBalance: a.CashBalance,
		CreatedAt:   formatTime(a.CreatedAt),
		UpdatedAt:   formatTime(a.UpdatedAt),
	}
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := h.funds.OpenAccount(r.Context(), req.AccountID, req.InitialCash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildAccountResponse(a))
}

// Balance handles GET /accounts/{account_id}/balance.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	a, err := h.funds.Balance(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(a))
}

// Deposit handles POST /accounts/{account_id}/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.funds.Deposit)
}

// Withdraw handles POST /accounts/{account_id}/withdraw.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.funds.Withdraw)
}

func (h *AccountHandler) move(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error),
) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	a, err := op(r.Context(), chi.URLParam(r, "account_id"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildAccountResponse(a))
}

// Positions handles GET /accounts/{account_id}/positions.
func (h *AccountHandler) Positions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	ps, err := h.funds.Positions(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := positionListResponse{
		AccountID: accountID,
		Positions: make([]positionResponse, len(ps)),
	}
	for i, p := range ps {
		resp.Positions[i] = positionResponse{
			Symbol:      p.Symbol,
			Quantity:    p.Quantity,
			AverageCost: p.AverageCost,
			IsShort:     p.IsShort,
			UpdatedAt:   formatTime(p.UpdatedAt),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
