package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

// DecryptGateway defines the cleartext-recovery surface the decrypt handler
// requires.
type DecryptGateway interface {
	Decrypt(ctx context.Context, h fhe.Handle, p domain.Principal) (uint64, error)
	Grants(h fhe.Handle) []domain.Grant
}

// DecryptHandler serves cleartext recovery and grant inspection. In a full
// deployment the caller identity would come from an authenticated session;
// here the requesting principal is part of the request body and the handler
// enforces the grant lattice as-is.
type DecryptHandler struct {
	gateway DecryptGateway
	logger  *slog.Logger
}

// NewDecryptHandler creates a DecryptHandler.
func NewDecryptHandler(gateway DecryptGateway, logger *slog.Logger) *DecryptHandler {
	return &DecryptHandler{
		gateway: gateway,
		logger:  logger.With(slog.String("component", "decrypt_handler")),
	}
}

type decryptRequest struct {
	Handle    string `json:"handle"`
	Principal string `json:"principal"` // "service", "account", or "public"
	Account   string `json:"account,omitempty"`
}

// Decrypt recovers the cleartext behind a handle for a granted principal.
// POST /api/v1/decrypt
func (h *DecryptHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	handle, err := fhe.ParseHandle(req.Handle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid handle")
		return
	}

	principal, ok := parsePrincipal(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid principal")
		return
	}

	value, err := h.gateway.Decrypt(r.Context(), handle, principal)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"handle": handle.Hex(),
		"value":  value,
	})
}

// Grants reports the grant set recorded for a handle.
// GET /api/v1/grants/{handle}
func (h *DecryptHandler) Grants(w http.ResponseWriter, r *http.Request) {
	handle, err := fhe.ParseHandle(r.PathValue("handle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid handle")
		return
	}

	grants := h.gateway.Grants(handle)
	out := make([]map[string]any, len(grants))
	for i, g := range grants {
		entry := map[string]any{
			"handle": g.Handle,
			"kind":   string(g.Kind),
		}
		if g.Account != nil {
			entry["account"] = *g.Account
		}
		out[i] = entry
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"handle": handle.Hex(),
		"grants": out,
	})
}

func parsePrincipal(req decryptRequest) (domain.Principal, bool) {
	switch domain.PrincipalKind(req.Principal) {
	case domain.PrincipalService:
		return domain.ServicePrincipal(), true
	case domain.PrincipalPublic:
		return domain.PublicPrincipal(), true
	case domain.PrincipalAccount:
		account, ok := parseAddress(req.Account)
		if !ok {
			return domain.Principal{}, false
		}
		return domain.AccountPrincipal(account), true
	default:
		return domain.Principal{}, false
	}
}
