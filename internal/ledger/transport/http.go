package transport

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/fundme/internal/auth"
	"github.com/pendergraft/fundme/internal/ledger/domain"
	"github.com/pendergraft/fundme/internal/storage"
	"github.com/pendergraft/fundme/internal/validation"
)

// Handler handles HTTP requests for the ledger.
type Handler struct {
	svc domain.Service
}

// NewHandler creates a new ledger HTTP handler.
func NewHandler(svc domain.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers query routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleInfo)
	r.Get("/owner", h.handleOwner)
	r.Get("/price-feed", h.handlePriceFeed)
	r.Get("/funders/{index}", h.handleFunder)
	r.Get("/contributions/{address}", h.handleContribution)
	r.Get("/events", h.handleEvents)
	r.Get("/accounts/{address}/balance", h.handleBalance)
}

// RegisterWriteRoutes registers routes that act as the caller's account
// (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Get("/whoami", h.handleWhoAmI)
	r.Post("/fund", h.handleFund)
	r.Post("/withdraw", h.handleWithdraw)
	r.Put("/price-feed/answer", h.handleSetAnswer)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Info(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToInfoResponse(info))
}

func (h *Handler) handleOwner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"owner": h.svc.Owner(r.Context()).Hex(),
	})
}

func (h *Handler) handlePriceFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"priceFeed": h.svc.PriceFeed(r.Context()).Hex(),
	})
}

func (h *Handler) handleFunder(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Funder index must be an integer")
		return
	}

	addr, err := h.svc.Funder(r.Context(), index)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FunderResponse{Index: index, Address: addr.Hex()})
}

func (h *Handler) handleContribution(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	amount, err := h.svc.AmountFunded(r.Context(), addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ContributionResponse{Address: addr.Hex(), Amount: weiString(amount)})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}

	balance, err := h.svc.AccountBalance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Address: addr.Hex(), Balance: weiString(balance)})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	kind := q.Get("kind")
	if kind != "" && kind != storage.EventFund && kind != storage.EventWithdraw {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "kind must be fund or withdraw")
		return
	}
	account := q.Get("account")
	if account != "" {
		if err := validation.ValidateAddress(account); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	}

	result, err := h.svc.Events(r.Context(), domain.EventFilter{
		Kind:    kind,
		Account: account,
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data := make([]EventResponse, len(result.Events))
	for i, e := range result.Events {
		data[i] = ToEventResponse(e)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": map[string]any{
			"limit":      limit,
			"hasMore":    result.HasMore,
			"nextCursor": result.NextCursor,
		},
	})
}

func (h *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	account, ok := callerAccount(w, r)
	if !ok {
		return
	}

	resp := WhoAmIResponse{Account: account.Hex(), IsOwner: account == h.svc.Owner(r.Context())}
	if key := auth.GetAPIKeyFromContext(r.Context()); key != nil {
		resp.KeyName = key.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFund(w http.ResponseWriter, r *http.Request) {
	sender, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	amount, err := validation.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.svc.Fund(r.Context(), sender, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToFundResponse(result))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Withdraw(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToWithdrawResponse(result))
}

func (h *Handler) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req SetAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	answer, ok := new(big.Int).SetString(req.Answer, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "answer must be a base-10 integer")
		return
	}

	price, err := h.svc.SetPriceAnswer(r.Context(), caller, answer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToPriceResponse(price))
}

// callerAccount returns the account bound to the request's API key.
func callerAccount(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is not bound to an account")
		return common.Address{}, false
	}
	return account, true
}

func addressParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, err := validation.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return common.Address{}, false
	}
	return addr, true
}

// writeDomainError maps ledger errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientContribution):
		writeError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_CONTRIBUTION", domain.ErrInsufficientContribution.Error())
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "NOT_OWNER", "Only the owner can do this")
	case errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, "TRANSFER_FAILED", "Transfer to owner failed")
	case errors.Is(err, domain.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, "INDEX_OUT_OF_RANGE", err.Error())
	case errors.Is(err, domain.ErrPriceSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "PRICE_SOURCE_UNAVAILABLE", "Price feed is unavailable")
	case errors.Is(err, domain.ErrMockFeedUnavailable):
		writeError(w, http.StatusConflict, "NOT_DEVELOPMENT", "Price feed is not a development mock")
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes the standard error envelope. It is shared with the
// auth middleware so every rejection has the same shape.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
