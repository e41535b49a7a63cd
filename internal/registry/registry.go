// Package registry is the append-only store of prediction markets: public
// metadata, confidential per-option totals, and the stored wagers. Records
// live in an arena addressed by sequential id; ids are never reused, even
// after a failed create.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
)

// record is the internal mutable form of a prediction. Snapshots handed out
// by Get/List are value copies; callers can never mutate the arena directly.
type record struct {
	pred   domain.Prediction
	wagers map[common.Address]domain.Wager
}

// Registry holds every prediction ever created. It is not safe for concurrent
// use on its own; the engine serializes access.
type Registry struct {
	alg   fhe.Algebra
	arena []*record // index i holds prediction id i+1
}

// New creates an empty registry over the given algebra.
func New(alg fhe.Algebra) *Registry {
	return &Registry{alg: alg}
}

// Count returns the number of predictions ever created. Ids run 1..Count.
func (r *Registry) Count() uint64 {
	return uint64(len(r.arena))
}

// Create validates the public market parameters, allocates the next
// sequential id, and initializes all total slots to encrypted zero. The id
// counter advances only on success. Validation failures return
// domain.ErrValidation and allocate nothing.
func (r *Registry) Create(title string, options []string, creator common.Address, now time.Time) (domain.Prediction, error) {
	if strings.TrimSpace(title) == "" {
		return domain.Prediction{}, fmt.Errorf("registry: empty title: %w", domain.ErrValidation)
	}
	if len(options) < domain.MinOptions || len(options) > domain.MaxOptions {
		return domain.Prediction{}, fmt.Errorf("registry: %d options, want %d..%d: %w",
			len(options), domain.MinOptions, domain.MaxOptions, domain.ErrValidation)
	}
	for i, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return domain.Prediction{}, fmt.Errorf("registry: empty option %d: %w", i, domain.ErrValidation)
		}
	}

	pred := domain.Prediction{
		ID:          uint64(len(r.arena)) + 1,
		Title:       title,
		Options:     append([]string(nil), options...),
		OptionCount: uint8(len(options)),
		Creator:     creator,
		CreatedAt:   now,
		IsOpen:      true,
	}
	// All four slots are initialized regardless of the option count so the
	// array shape never varies with market parameters.
	for i := range pred.Totals {
		pred.Totals[i] = r.alg.TrivialEncrypt(0, fhe.TypeUint64)
	}

	r.arena = append(r.arena, &record{
		pred:   pred,
		wagers: make(map[common.Address]domain.Wager),
	})
	return snapshot(pred), nil
}

// Get returns a snapshot of the prediction, or domain.ErrNotFound.
func (r *Registry) Get(id uint64) (domain.Prediction, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return domain.Prediction{}, err
	}
	return snapshot(rec.pred), nil
}

// List returns snapshots of all predictions in id order.
func (r *Registry) List() []domain.Prediction {
	out := make([]domain.Prediction, 0, len(r.arena))
	for _, rec := range r.arena {
		out = append(out, snapshot(rec.pred))
	}
	return out
}

// Close flips the prediction from open to ended. Only the creator may close,
// and only once; the transition is irreversible. Returns the closed snapshot.
func (r *Registry) Close(id uint64, requester common.Address, now time.Time) (domain.Prediction, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return domain.Prediction{}, err
	}
	if requester != rec.pred.Creator {
		return domain.Prediction{}, fmt.Errorf("registry: close prediction %d by non-creator %s: %w",
			id, requester.Hex(), domain.ErrUnauthorized)
	}
	if !rec.pred.IsOpen {
		return domain.Prediction{}, fmt.Errorf("registry: prediction %d: %w", id, domain.ErrMarketClosed)
	}
	rec.pred.IsOpen = false
	closedAt := now
	rec.pred.ClosedAt = &closedAt
	return snapshot(rec.pred), nil
}

// AddToTotal adds the (masked) contribution to the given total slot and
// returns the new slot ciphertext. The slot index is a public quantity; the
// caller only ever skips slots on the public option count, never on a
// secret-derived condition.
func (r *Registry) AddToTotal(id uint64, slot int, contribution fhe.Ciphertext) (fhe.Ciphertext, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return fhe.Ciphertext{}, err
	}
	if slot < 0 || slot >= domain.TotalSlots {
		return fhe.Ciphertext{}, fmt.Errorf("registry: total slot %d out of range: %w", slot, domain.ErrValidation)
	}
	next := r.alg.Add(rec.pred.Totals[slot], contribution)
	rec.pred.Totals[slot] = next
	return next, nil
}

// SetWager stores the account's wager on the prediction, overwriting any
// prior wager by the same account.
func (r *Registry) SetWager(id uint64, account common.Address, w domain.Wager) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	rec.wagers[account] = w
	return nil
}

// WagerOf returns the account's stored wager on the prediction, or
// domain.ErrNotFound if the account never bet on it.
func (r *Registry) WagerOf(id uint64, account common.Address) (domain.Wager, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return domain.Wager{}, err
	}
	w, ok := rec.wagers[account]
	if !ok {
		return domain.Wager{}, fmt.Errorf("registry: no wager by %s on prediction %d: %w",
			account.Hex(), id, domain.ErrNotFound)
	}
	return w, nil
}

func (r *Registry) lookup(id uint64) (*record, error) {
	if id == 0 || id > uint64(len(r.arena)) {
		return nil, fmt.Errorf("registry: prediction %d: %w", id, domain.ErrNotFound)
	}
	return r.arena[id-1], nil
}

// snapshot deep-copies the mutable slices of a prediction.
func snapshot(p domain.Prediction) domain.Prediction {
	p.Options = append([]string(nil), p.Options...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	return p
}
