package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miko-labs/futurify/internal/access"
	"github.com/miko-labs/futurify/internal/domain"
	"github.com/miko-labs/futurify/internal/fhe"
	"github.com/miko-labs/futurify/internal/gateway"
	"github.com/miko-labs/futurify/internal/ledger"
	"github.com/miko-labs/futurify/internal/registry"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

type harness struct {
	cop    *fhe.Coprocessor
	engine *Engine
	gw     *gateway.Gateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cop, err := fhe.NewCoprocessor(nil)
	require.NoError(t, err)

	acc := access.NewManager()
	eng := New(cop, ledger.New(cop), registry.New(cop), acc, 0, logger)
	return &harness{
		cop:    cop,
		engine: eng,
		gw:     gateway.New(acc, cop, logger),
	}
}

// betInput builds the wallet-collaborator side of a bet: two sealed blobs and
// the single proof binding them to the account.
func (h *harness) betInput(t *testing.T, choice uint8, amount uint64, account common.Address) domain.BetInput {
	t.Helper()
	choiceBlob, err := h.cop.EncryptInput(uint64(choice), fhe.TypeUint8, account)
	require.NoError(t, err)
	amountBlob, err := h.cop.EncryptInput(amount, fhe.TypeUint64, account)
	require.NoError(t, err)
	return domain.BetInput{
		Choice: choiceBlob,
		Amount: amountBlob,
		Proof:  fhe.ProveInputs([][]byte{choiceBlob, amountBlob}, account),
	}
}

func (h *harness) decrypt(t *testing.T, ct fhe.Ciphertext, p domain.Principal) uint64 {
	t.Helper()
	v, err := h.gw.Decrypt(context.Background(), ct.Handle(), p)
	require.NoError(t, err)
	return v
}

func (h *harness) balance(t *testing.T, account common.Address) uint64 {
	t.Helper()
	bal, err := h.engine.BalanceOf(account)
	require.NoError(t, err)
	return h.decrypt(t, bal, domain.AccountPrincipal(account))
}

func (h *harness) totals(t *testing.T, id uint64, p domain.Principal) []uint64 {
	t.Helper()
	pred, err := h.engine.GetPrediction(id)
	require.NoError(t, err)
	out := make([]uint64, int(pred.OptionCount))
	for i := range out {
		out[i] = h.decrypt(t, pred.Totals[i], p)
	}
	return out
}

func TestDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("mints at the configured denomination", func(t *testing.T) {
		_, err := h.engine.Deposit(ctx, alice, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000), h.balance(t, alice))

		_, err = h.engine.Deposit(ctx, alice, 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(3_000_000), h.balance(t, alice))
	})

	t.Run("zero deposit is rejected", func(t *testing.T) {
		_, err := h.engine.Deposit(ctx, alice, 0)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("overflowing deposit is rejected", func(t *testing.T) {
		_, err := h.engine.Deposit(ctx, alice, 1<<63)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("unknown account has no balance", func(t *testing.T) {
		_, err := h.engine.BalanceOf(carol)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCreatePrediction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("invalid option counts never allocate an id", func(t *testing.T) {
		_, err := h.engine.CreatePrediction(ctx, carol, "Too few", []string{"Only"})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Empty(t, h.engine.ListPredictions())

		pred, err := h.engine.CreatePrediction(ctx, carol, "First", []string{"Yes", "No"})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), pred.ID)
	})

	t.Run("creator and service can decrypt the fresh totals", func(t *testing.T) {
		pred, err := h.engine.CreatePrediction(ctx, carol, "Second", []string{"A", "B", "C", "D"})
		require.NoError(t, err)
		for _, total := range pred.Totals {
			assert.Equal(t, uint64(0), h.decrypt(t, total, domain.AccountPrincipal(carol)))
			assert.Equal(t, uint64(0), h.decrypt(t, total, domain.ServicePrincipal()))
			_, err := h.gw.Decrypt(ctx, total.Handle(), domain.PublicPrincipal())
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		}
	})
}

// TestLifecycleScenario walks the reference scenario end to end: deposit one
// unit, create a three-option market, bet 500 on index 1, close, re-close.
func TestLifecycleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), h.balance(t, alice))

	pred, err := h.engine.CreatePrediction(ctx, carol, "Rain tomorrow?", []string{"Yes", "No", "Maybe"})
	require.NoError(t, err)

	require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 1, 500, alice)))

	assert.Equal(t, uint64(999_500), h.balance(t, alice))
	assert.Equal(t, []uint64{0, 500, 0}, h.totals(t, pred.ID, domain.AccountPrincipal(carol)))

	// The bettor can decrypt their own stored wager.
	wager, err := h.engine.WagerOf(pred.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.decrypt(t, wager.Choice, domain.AccountPrincipal(alice)))
	assert.Equal(t, uint64(500), h.decrypt(t, wager.Amount, domain.AccountPrincipal(alice)))

	// Totals are not public before close.
	fresh, err := h.engine.GetPrediction(pred.ID)
	require.NoError(t, err)
	_, err = h.gw.Decrypt(ctx, fresh.Totals[1].Handle(), domain.PublicPrincipal())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Close by a non-creator is refused.
	_, err = h.engine.Close(ctx, pred.ID, alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	closed, err := h.engine.Close(ctx, pred.ID, carol)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)

	// After close anyone can decrypt the mutated slots.
	assert.Equal(t, []uint64{0, 500, 0}, h.totals(t, pred.ID, domain.PublicPrincipal()))

	// A second close fails, as does any further bet.
	_, err = h.engine.Close(ctx, pred.ID, carol)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	err = h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 0, 1, alice))
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	assert.Equal(t, uint64(999_500), h.balance(t, alice))
}

func TestMaskedInvalidBets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, alice, 1)
	require.NoError(t, err)
	pred, err := h.engine.CreatePrediction(ctx, carol, "Market", []string{"Yes", "No", "Maybe"})
	require.NoError(t, err)

	t.Run("insufficient balance commits a zero wager", func(t *testing.T) {
		require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 1, 2_000_000, alice)))

		assert.Equal(t, uint64(1_000_000), h.balance(t, alice))
		assert.Equal(t, []uint64{0, 0, 0}, h.totals(t, pred.ID, domain.ServicePrincipal()))

		wager, err := h.engine.WagerOf(pred.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), h.decrypt(t, wager.Choice, domain.AccountPrincipal(alice)))
		assert.Equal(t, uint64(0), h.decrypt(t, wager.Amount, domain.AccountPrincipal(alice)))
	})

	t.Run("out-of-range choice commits a zero wager", func(t *testing.T) {
		require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 3, 500, alice)))

		assert.Equal(t, uint64(1_000_000), h.balance(t, alice))
		assert.Equal(t, []uint64{0, 0, 0}, h.totals(t, pred.ID, domain.ServicePrincipal()))
	})

	t.Run("account with no balance bets zero", func(t *testing.T) {
		require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, bob, h.betInput(t, 0, 1, bob)))
		assert.Equal(t, uint64(0), h.balance(t, bob))
		assert.Equal(t, []uint64{0, 0, 0}, h.totals(t, pred.ID, domain.ServicePrincipal()))
	})
}

func TestBetOverwriteSemantics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, alice, 1)
	require.NoError(t, err)
	pred, err := h.engine.CreatePrediction(ctx, carol, "Market", []string{"Yes", "No"})
	require.NoError(t, err)

	require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 0, 500, alice)))
	require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 1, 200, alice)))

	// The stored wager is the latest one only; both applied amounts still
	// debit the balance and accumulate into the totals.
	wager, err := h.engine.WagerOf(pred.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.decrypt(t, wager.Choice, domain.AccountPrincipal(alice)))
	assert.Equal(t, uint64(200), h.decrypt(t, wager.Amount, domain.AccountPrincipal(alice)))

	assert.Equal(t, uint64(999_300), h.balance(t, alice))
	assert.Equal(t, []uint64{500, 200}, h.totals(t, pred.ID, domain.ServicePrincipal()))
}

// TestTotalsConservation checks the core accounting invariant: the sum of the
// decrypted option totals equals the sum of the effectively-applied wager
// amounts, with masked bets contributing zero.
func TestTotalsConservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, acct := range []common.Address{alice, bob} {
		_, err := h.engine.Deposit(ctx, acct, 1)
		require.NoError(t, err)
	}
	pred, err := h.engine.CreatePrediction(ctx, carol, "Market", []string{"A", "B", "C", "D"})
	require.NoError(t, err)

	bets := []struct {
		account common.Address
		choice  uint8
		amount  uint64
		applied bool
	}{
		{alice, 0, 100, true},
		{alice, 3, 250, true},
		{bob, 1, 400, true},
		{bob, 7, 999, false},       // invalid choice, masked
		{bob, 2, 5_000_000, false}, // exceeds balance, masked
		{bob, 2, 50, true},
	}

	var applied uint64
	for _, b := range bets {
		require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, b.account, h.betInput(t, b.choice, b.amount, b.account)))
		if b.applied {
			applied += b.amount
		}
	}

	totals := h.totals(t, pred.ID, domain.ServicePrincipal())
	var sum uint64
	for _, v := range totals {
		sum += v
	}
	assert.Equal(t, applied, sum)
	assert.Equal(t, []uint64{100, 400, 50, 250}, totals)

	assert.Equal(t, uint64(1_000_000-100-250), h.balance(t, alice))
	assert.Equal(t, uint64(1_000_000-400-50), h.balance(t, bob))
}

func TestBetStructuralFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, alice, 1)
	require.NoError(t, err)
	pred, err := h.engine.CreatePrediction(ctx, carol, "Market", []string{"Yes", "No"})
	require.NoError(t, err)

	t.Run("unknown prediction", func(t *testing.T) {
		err := h.engine.PlaceBet(ctx, 42, alice, h.betInput(t, 0, 1, alice))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("proof bound to another account aborts before any state change", func(t *testing.T) {
		in := h.betInput(t, 1, 500, bob)
		err := h.engine.PlaceBet(ctx, pred.ID, alice, in)
		assert.ErrorIs(t, err, fhe.ErrProofMismatch)

		assert.Equal(t, uint64(1_000_000), h.balance(t, alice))
		assert.Equal(t, []uint64{0, 0}, h.totals(t, pred.ID, domain.ServicePrincipal()))
		_, err = h.engine.WagerOf(pred.ID, alice)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("tampered proof", func(t *testing.T) {
		in := h.betInput(t, 1, 500, alice)
		in.Proof[0] ^= 0x01
		err := h.engine.PlaceBet(ctx, pred.ID, alice, in)
		assert.ErrorIs(t, err, fhe.ErrProofMismatch)
	})
}

func TestPermissionVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Deposit(ctx, alice, 1)
	require.NoError(t, err)
	pred, err := h.engine.CreatePrediction(ctx, carol, "Market", []string{"Yes", "No"})
	require.NoError(t, err)
	require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 0, 100, alice)))

	fresh, err := h.engine.GetPrediction(pred.ID)
	require.NoError(t, err)

	t.Run("totals readable by creator and service only before close", func(t *testing.T) {
		for slot := 0; slot < int(fresh.OptionCount); slot++ {
			h.decrypt(t, fresh.Totals[slot], domain.AccountPrincipal(carol))
			h.decrypt(t, fresh.Totals[slot], domain.ServicePrincipal())

			_, err := h.gw.Decrypt(ctx, fresh.Totals[slot].Handle(), domain.AccountPrincipal(alice))
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
			_, err = h.gw.Decrypt(ctx, fresh.Totals[slot].Handle(), domain.PublicPrincipal())
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		}
	})

	t.Run("balances readable by owner only", func(t *testing.T) {
		bal, err := h.engine.BalanceOf(alice)
		require.NoError(t, err)
		h.decrypt(t, bal, domain.AccountPrincipal(alice))

		_, err = h.gw.Decrypt(ctx, bal.Handle(), domain.AccountPrincipal(carol))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("grant report names the tiers", func(t *testing.T) {
		grants := h.gw.Grants(fresh.Totals[0].Handle())
		assert.NotEmpty(t, grants)

		_, err := h.engine.Close(ctx, pred.ID, carol)
		require.NoError(t, err)

		var public bool
		for _, g := range h.gw.Grants(fresh.Totals[0].Handle()) {
			if g.Kind == domain.PrincipalPublic {
				public = true
			}
		}
		assert.True(t, public)
	})
}

// --- post-commit sink stubs ---

type captureBus struct {
	mu     sync.Mutex
	events []string
}

func (b *captureBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, channel)
	return nil
}

func (b *captureBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type captureStores struct {
	mu      sync.Mutex
	upserts []domain.PredictionRecord
	grants  []domain.Grant
	fail    bool
}

func (s *captureStores) Upsert(_ context.Context, rec domain.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.upserts = append(s.upserts, rec)
	return nil
}

func (s *captureStores) GetByID(context.Context, uint64) (domain.PredictionRecord, error) {
	return domain.PredictionRecord{}, domain.ErrNotFound
}

func (s *captureStores) ListClosedBefore(context.Context, time.Time) ([]domain.PredictionRecord, error) {
	return nil, nil
}

func (s *captureStores) MarkArchived(context.Context, uint64) error { return nil }

func (s *captureStores) Append(_ context.Context, g domain.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.grants = append(s.grants, g)
	return nil
}

func (s *captureStores) ListByHandle(context.Context, string) ([]domain.Grant, error) {
	return nil, nil
}

func TestPostCommitSinks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bus := &captureBus{}
	stores := &captureStores{}
	h.engine.WithBus(bus).WithMirror(stores, stores)

	_, err := h.engine.Deposit(ctx, alice, 1)
	require.NoError(t, err)
	pred, err := h.engine.CreatePrediction(ctx, carol, "Market", []string{"Yes", "No"})
	require.NoError(t, err)
	require.NoError(t, h.engine.PlaceBet(ctx, pred.ID, alice, h.betInput(t, 0, 100, alice)))
	_, err = h.engine.Close(ctx, pred.ID, carol)
	require.NoError(t, err)

	assert.Equal(t, []string{
		string(domain.EventDeposit),
		string(domain.EventMarketCreated),
		string(domain.EventBetPlaced),
		string(domain.EventMarketClosed),
	}, bus.events)

	require.NotEmpty(t, stores.upserts)
	last := stores.upserts[len(stores.upserts)-1]
	assert.Equal(t, pred.ID, last.ID)
	assert.False(t, last.IsOpen)
	assert.NotEmpty(t, stores.grants)

	t.Run("sink failures never fail the operation", func(t *testing.T) {
		stores.fail = true
		_, err := h.engine.Deposit(ctx, alice, 1)
		assert.NoError(t, err)
	})
}
