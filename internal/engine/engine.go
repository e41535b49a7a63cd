// Package engine is the operation entry point of the confidential
// prediction-market core: deposits, market creation, bet placement, and
// market close. Every operation is a synchronous, terminating computation
// applied under one mutex - the single ordering authority - and either fully
// commits or fully aborts.
//
// The load-bearing rule throughout: no step ever branches on a confidential
// truth value to decide whether to mutate. Every mutation happens
// unconditionally and its magnitude is masked to zero when the logical
// condition is false.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/miko-labs/futurify/internal/access"
	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
	"github.com/miko-labs/futurify/internal/ledger"
	"github.com/miko-labs/futurify/internal/registry"
)

// DefaultDenomination is the number of confidential micro-units minted per
// publicly paid unit.
const DefaultDenomination = 1_000_000

// Engine applies operations against the ledger, registry, and permission
// manager as one atomic step each.
type Engine struct {
	mu       sync.Mutex
	alg      fhe.Algebra
	ledger   *ledger.Ledger
	registry *registry.Registry
	access   *access.Manager
	denom    uint64
	logger   *slog.Logger
	now      func() time.Time

	// Optional post-commit sinks. All best-effort: a sink failure is logged
	// and never fails the already-committed operation.
	bus         domain.SignalBus
	predictions domain.PredictionStore
	grantLog    domain.GrantStore
}

// New creates an Engine over the given core components. denom is the
// micro-unit factor applied to deposits; pass 0 for DefaultDenomination.
func New(alg fhe.Algebra, led *ledger.Ledger, reg *registry.Registry, acc *access.Manager, denom uint64, logger *slog.Logger) *Engine {
	if denom == 0 {
		denom = DefaultDenomination
	}
	return &Engine{
		alg:      alg,
		ledger:   led,
		registry: reg,
		access:   acc,
		denom:    denom,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
	}
}

// WithBus attaches a signal bus for post-commit event publication.
func (e *Engine) WithBus(bus domain.SignalBus) *Engine {
	e.bus = bus
	return e
}

// WithMirror attaches the durable mirror stores. The in-memory state stays
// the source of truth.
func (e *Engine) WithMirror(predictions domain.PredictionStore, grants domain.GrantStore) *Engine {
	e.predictions = predictions
	e.grantLog = grants
	return e
}

// Denomination returns the micro-unit factor applied to deposits.
func (e *Engine) Denomination() uint64 {
	return e.denom
}

// Deposit mints units * denomination confidential micro-units into the
// account's balance. The purchase amount is public; it is confidential at
// rest after the trivial encryption but was never a secret input, so no
// proof is required.
func (e *Engine) Deposit(ctx context.Context, account common.Address, units uint64) (fhe.Ciphertext, error) {
	if units == 0 {
		return fhe.Ciphertext{}, fmt.Errorf("engine: zero deposit: %w", domain.ErrValidation)
	}
	if units > math.MaxUint64/e.denom {
		return fhe.Ciphertext{}, fmt.Errorf("engine: deposit of %d units overflows: %w", units, domain.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	minted := e.alg.TrivialEncrypt(units*e.denom, fhe.TypeUint64)
	balance := e.ledger.Credit(account, minted)
	e.grantPrivate(ctx, balance.Handle(), account)

	e.logger.InfoContext(ctx, "engine: deposit credited",
		slog.String("account", account.Hex()),
		slog.Uint64("units", units),
	)
	e.publish(ctx, domain.Event{
		Type:    domain.EventDeposit,
		Account: account.Hex(),
	})
	return balance, nil
}

// CreatePrediction registers a new market with 2 to 4 options and grants the
// creator and the issuing service decrypt permission on all four total slots.
func (e *Engine) CreatePrediction(ctx context.Context, creator common.Address, title string, options []string) (domain.Prediction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pred, err := e.registry.Create(title, options, creator, e.now())
	if err != nil {
		return domain.Prediction{}, err
	}
	for _, total := range pred.Totals {
		e.grantPrivate(ctx, total.Handle(), creator)
	}
	e.mirrorPrediction(ctx, pred)

	e.logger.InfoContext(ctx, "engine: prediction created",
		slog.Uint64("id", pred.ID),
		slog.String("creator", creator.Hex()),
		slog.Int("options", len(pred.Options)),
	)
	e.publish(ctx, domain.Event{
		Type:         domain.EventMarketCreated,
		PredictionID: pred.ID,
		Account:      creator.Hex(),
		Title:        pred.Title,
	})
	return pred, nil
}

// PlaceBet validates and applies a wager. Structural failures (unknown
// prediction, closed market, bad proof) abort before any state change.
// Confidential failures (insufficient balance, out-of-range choice) never
// surface: the bet commits with its magnitude masked to zero, so an observer
// cannot learn the secret condition from the outcome.
func (e *Engine) PlaceBet(ctx context.Context, predictionID uint64, account common.Address, in domain.BetInput) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pred, err := e.registry.Get(predictionID)
	if err != nil {
		return err
	}
	if !pred.IsOpen {
		return fmt.Errorf("engine: bet on prediction %d: %w", predictionID, domain.ErrMarketClosed)
	}

	cts, err := e.alg.VerifyInputs(
		[][]byte{in.Choice, in.Amount},
		[]fhe.ScalarType{fhe.TypeUint8, fhe.TypeUint64},
		in.Proof,
		account,
	)
	if err != nil {
		return fmt.Errorf("engine: bet inputs for prediction %d: %w", predictionID, err)
	}
	choice, amount := cts[0], cts[1]

	// Everything below is infallible and commits as one step.
	balance := e.ledger.Balance(account)
	optionCount := e.alg.TrivialEncrypt(uint64(pred.OptionCount), fhe.TypeUint8)
	choiceValid := e.alg.Lt(choice, optionCount)
	balanceOK := e.alg.Le(amount, balance)
	allowed := e.alg.And(choiceValid, balanceOK)

	spend := e.ledger.DebitMasked(account, amount, allowed)

	zeroChoice := e.alg.TrivialEncrypt(0, fhe.TypeUint8)
	storedChoice := e.alg.Select(allowed, choice, zeroChoice)
	if err := e.registry.SetWager(predictionID, account, domain.Wager{
		Choice:   storedChoice,
		Amount:   spend,
		PlacedAt: e.now(),
	}); err != nil {
		return err
	}

	// All four slots get identical structural treatment; only the public
	// option count may skip a slot, never a secret-derived condition.
	for slot := 0; slot < domain.TotalSlots; slot++ {
		if slot >= int(pred.OptionCount) {
			continue
		}
		slotIndex := e.alg.TrivialEncrypt(uint64(slot), fhe.TypeUint8)
		isThisOption := e.alg.Eq(storedChoice, slotIndex)
		zero := e.alg.TrivialEncrypt(0, fhe.TypeUint64)
		contribution := e.alg.Select(isThisOption, spend, zero)

		total, err := e.registry.AddToTotal(predictionID, slot, contribution)
		if err != nil {
			return err
		}
		e.grantPrivate(ctx, total.Handle(), pred.Creator)
	}

	e.grantPrivate(ctx, e.ledger.Balance(account).Handle(), account)
	e.grantPrivate(ctx, storedChoice.Handle(), account)
	e.grantPrivate(ctx, spend.Handle(), account)

	if updated, err := e.registry.Get(predictionID); err == nil {
		e.mirrorPrediction(ctx, updated)
	}

	e.logger.InfoContext(ctx, "engine: bet placed",
		slog.Uint64("prediction_id", predictionID),
		slog.String("account", account.Hex()),
	)
	e.publish(ctx, domain.Event{
		Type:         domain.EventBetPlaced,
		PredictionID: predictionID,
		Account:      account.Hex(),
	})
	return nil
}

// Close ends the market: the creator flips the prediction to ended and
// the first optionCount total slots become publicly decryptable - the only
// irreversible confidentiality downgrade in the system.
func (e *Engine) Close(ctx context.Context, predictionID uint64, requester common.Address) (domain.Prediction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pred, err := e.registry.Close(predictionID, requester, e.now())
	if err != nil {
		return domain.Prediction{}, err
	}

	for slot := 0; slot < int(pred.OptionCount); slot++ {
		h := pred.Totals[slot].Handle()
		e.access.GrantPublic(h)
		e.appendGrant(ctx, domain.Grant{
			Handle:    h.Hex(),
			Kind:      domain.PrincipalPublic,
			GrantedAt: e.now(),
		})
	}
	e.mirrorPrediction(ctx, pred)

	e.logger.InfoContext(ctx, "engine: prediction closed",
		slog.Uint64("id", predictionID),
		slog.String("creator", requester.Hex()),
	)
	e.publish(ctx, domain.Event{
		Type:         domain.EventMarketClosed,
		PredictionID: predictionID,
		Account:      requester.Hex(),
		Title:        pred.Title,
	})
	return pred, nil
}

// GetPrediction returns a snapshot of the prediction.
func (e *Engine) GetPrediction(predictionID uint64) (domain.Prediction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(predictionID)
}

// ListPredictions returns snapshots of every prediction in id order.
func (e *Engine) ListPredictions() []domain.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// BalanceOf returns the account's balance ciphertext, or domain.ErrNotFound
// if the account was never credited.
func (e *Engine) BalanceOf(account common.Address) (fhe.Ciphertext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ledger.Has(account) {
		return fhe.Ciphertext{}, fmt.Errorf("engine: no balance for %s: %w", account.Hex(), domain.ErrNotFound)
	}
	return e.ledger.Balance(account), nil
}

// WagerOf returns the account's stored wager on the prediction.
func (e *Engine) WagerOf(predictionID uint64, account common.Address) (domain.Wager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.WagerOf(predictionID, account)
}

// grantPrivate grants the account and the issuing service decrypt permission
// on the handle and logs both grants.
func (e *Engine) grantPrivate(ctx context.Context, h fhe.Handle, account common.Address) {
	e.access.GrantAccount(h, account)
	e.access.GrantService(h)

	hex := account.Hex()
	now := e.now()
	e.appendGrant(ctx, domain.Grant{Handle: h.Hex(), Kind: domain.PrincipalAccount, Account: &hex, GrantedAt: now})
	e.appendGrant(ctx, domain.Grant{Handle: h.Hex(), Kind: domain.PrincipalService, GrantedAt: now})
}

func (e *Engine) appendGrant(ctx context.Context, g domain.Grant) {
	if e.grantLog == nil {
		return
	}
	if err := e.grantLog.Append(ctx, g); err != nil {
		e.logger.WarnContext(ctx, "engine: grant log write failed",
			slog.String("handle", g.Handle),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) mirrorPrediction(ctx context.Context, pred domain.Prediction) {
	if e.predictions == nil {
		return
	}
	if err := e.predictions.Upsert(ctx, pred.Record()); err != nil {
		e.logger.WarnContext(ctx, "engine: prediction mirror write failed",
			slog.Uint64("id", pred.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, evt domain.Event) {
	if e.bus == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.CreatedAt = e.now()

	data, err := json.Marshal(evt)
	if err != nil {
		e.logger.WarnContext(ctx, "engine: marshal event failed", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, string(evt.Type), data); err != nil {
		e.logger.WarnContext(ctx, "engine: publish event failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}
