package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miko-labs/futurify/internal/fhe"
)

// AccountEngine defines the balance operations the account handler requires
// from the engine.
type AccountEngine interface {
	Deposit(ctx context.Context, account common.Address, units uint64) (fhe.Ciphertext, error)
	BalanceOf(account common.Address) (fhe.Ciphertext, error)
	Denomination() uint64
}

// AccountHandler serves deposit and balance endpoints.
type AccountHandler struct {
	engine AccountEngine
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(engine AccountEngine, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		engine: engine,
		logger: logger.With(slog.String("component", "account_handler")),
	}
}

type depositRequest struct {
	Account string `json:"account"`
	Units   uint64 `json:"units"`
}

// Deposit mints confidential balance units for an account.
// POST /api/v1/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	balance, err := h.engine.Deposit(r.Context(), account, req.Units)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"account":        account.Hex(),
		"units":          req.Units,
		"denomination":   h.engine.Denomination(),
		"balance_handle": balance.Handle().Hex(),
	})
}

// Balance returns the account's confidential balance handle.
// GET /api/v1/accounts/{address}/balance
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	balance, err := h.engine.BalanceOf(account)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":        account.Hex(),
		"balance_handle": balance.Handle().Hex(),
	})
}
