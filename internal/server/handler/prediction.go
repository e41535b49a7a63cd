package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miko-labs/futurify/internal/domain"
)

// PredictionEngine defines the market operations the prediction handler
// requires from the engine. It is declared locally so the handler package
// does not depend on the concrete engine implementation.
type PredictionEngine interface {
	CreatePrediction(ctx context.Context, creator common.Address, title string, options []string) (domain.Prediction, error)
	PlaceBet(ctx context.Context, predictionID uint64, account common.Address, in domain.BetInput) error
	Close(ctx context.Context, predictionID uint64, requester common.Address) (domain.Prediction, error)
	GetPrediction(predictionID uint64) (domain.Prediction, error)
	ListPredictions() []domain.Prediction
	WagerOf(predictionID uint64, account common.Address) (domain.Wager, error)
}

// PredictionHandler serves market lifecycle and bet endpoints.
type PredictionHandler struct {
	engine PredictionEngine
	cache  domain.PredictionCache // optional read-through cache
	logger *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler. cache may be nil.
func NewPredictionHandler(engine PredictionEngine, cache domain.PredictionCache, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		engine: engine,
		cache:  cache,
		logger: logger.With(slog.String("component", "prediction_handler")),
	}
}

type createPredictionRequest struct {
	Creator string   `json:"creator"`
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

// Create registers a new prediction market.
// POST /api/v1/predictions
func (h *PredictionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}

	pred, err := h.engine.CreatePrediction(r.Context(), creator, req.Title, req.Options)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	h.cacheSet(r.Context(), pred)

	writeJSON(w, http.StatusCreated, pred.Record())
}

// List returns every prediction in id order.
// GET /api/v1/predictions
func (h *PredictionHandler) List(w http.ResponseWriter, r *http.Request) {
	preds := h.engine.ListPredictions()
	recs := make([]domain.PredictionRecord, len(preds))
	for i, p := range preds {
		recs[i] = p.Record()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": recs,
		"total":       len(recs),
	})
}

// Get returns a single prediction by id, serving from the cache when warm.
// GET /api/v1/predictions/{id}
func (h *PredictionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}

	if h.cache != nil {
		if rec, err := h.cache.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	pred, err := h.engine.GetPrediction(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	h.cacheSet(r.Context(), pred)

	writeJSON(w, http.StatusOK, pred.Record())
}

// Totals returns the option-total ciphertext handles for a prediction. The
// cleartext sums are recoverable only through the decrypt endpoint, subject
// to grants.
// GET /api/v1/predictions/{id}/totals
func (h *PredictionHandler) Totals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}

	pred, err := h.engine.GetPrediction(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	handles := make([]string, int(pred.OptionCount))
	for i := range handles {
		handles[i] = pred.Totals[i].Handle().Hex()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prediction_id": pred.ID,
		"is_open":       pred.IsOpen,
		"total_handles": handles,
	})
}

type betRequest struct {
	Account    string `json:"account"`
	ChoiceBlob string `json:"choice_blob"`
	AmountBlob string `json:"amount_blob"`
	Proof      string `json:"proof"`
}

// PlaceBet applies a sealed wager to a prediction. A successful response
// never discloses whether the wager was effectively applied or masked.
// POST /api/v1/predictions/{id}/bets
func (h *PredictionHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}

	var req betRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	in, err := decodeBetInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.PlaceBet(r.Context(), id, account, in); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	h.cacheInvalidate(r.Context(), id)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"prediction_id": id,
		"status":        "committed",
	})
}

func decodeBetInput(req betRequest) (domain.BetInput, error) {
	choice, err := decodeBlob(req.ChoiceBlob)
	if err != nil {
		return domain.BetInput{}, errors.New("invalid choice_blob hex")
	}
	amount, err := decodeBlob(req.AmountBlob)
	if err != nil {
		return domain.BetInput{}, errors.New("invalid amount_blob hex")
	}
	proof, err := decodeBlob(req.Proof)
	if err != nil {
		return domain.BetInput{}, errors.New("invalid proof hex")
	}
	return domain.BetInput{Choice: choice, Amount: amount, Proof: proof}, nil
}

type closeRequest struct {
	Requester string `json:"requester"`
}

// Close ends a prediction market and publishes its totals.
// POST /api/v1/predictions/{id}/close
func (h *PredictionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	requester, ok := parseAddress(req.Requester)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid requester address")
		return
	}

	pred, err := h.engine.Close(r.Context(), id, requester)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	h.cacheSet(r.Context(), pred)

	writeJSON(w, http.StatusOK, pred.Record())
}

// Wager returns the caller's stored wager handles on a prediction.
// GET /api/v1/predictions/{id}/wagers/{address}
func (h *PredictionHandler) Wager(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prediction id")
		return
	}
	account, ok := parseAddress(r.PathValue("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	wager, err := h.engine.WagerOf(id, account)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prediction_id": id,
		"account":       account.Hex(),
		"choice_handle": wager.Choice.Handle().Hex(),
		"amount_handle": wager.Amount.Handle().Hex(),
		"placed_at":     wager.PlacedAt,
	})
}

// cacheSet mirrors a prediction snapshot into the read cache, best-effort.
func (h *PredictionHandler) cacheSet(ctx context.Context, pred domain.Prediction) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, pred.Record()); err != nil {
		h.logger.WarnContext(ctx, "handler: cache set failed",
			slog.Uint64("id", pred.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *PredictionHandler) cacheInvalidate(ctx context.Context, id uint64) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, id); err != nil {
		h.logger.WarnContext(ctx, "handler: cache invalidate failed",
			slog.Uint64("id", id),
			slog.String("error", err.Error()),
		)
	}
}
