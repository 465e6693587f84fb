package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolwise/poolmarket/internal/domain"
)

const unit = 1_000_000

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func testParams() domain.Params {
	return domain.Params{FeeBps: 200, MinBet: unit / 100, MaxBet: 1000 * unit}
}

func newMarket(t *testing.T, s *Store) domain.Market {
	t.Helper()
	now := time.Now().UTC()
	m := domain.Market{
		ID:             domain.DeriveMarketID(alice, now, "will the next block exceed 200 txs"),
		Type:           domain.MarketTypeBlock,
		Question:       "will the next block exceed 200 txs",
		Creator:        alice,
		CreatedAt:      now,
		ResolutionTime: now.Add(time.Hour),
		Status:         domain.MarketStatusActive,
		Comparator:     domain.ComparatorGreaterThan,
		Threshold:      200,
	}
	require.NoError(t, s.CreateMarket(context.Background(), m))
	return m
}

func fund(t *testing.T, s *Store, addr common.Address, amount int64) {
	t.Helper()
	require.NoError(t, s.Deposit(context.Background(), addr, amount))
}

func place(t *testing.T, s *Store, marketID common.Hash, bettor common.Address, option int, amount int64) domain.Bet {
	t.Helper()
	bet, err := s.PlaceBet(context.Background(), domain.Bet{
		MarketID: marketID,
		Bettor:   bettor,
		Option:   option,
		Amount:   amount,
		PlacedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return bet
}

func TestCreateMarketDuplicate(t *testing.T) {
	s := New(testParams())
	m := newMarket(t, s)

	err := s.CreateMarket(context.Background(), m)
	assert.ErrorIs(t, err, domain.ErrDuplicateMarket)
}

func TestPlaceBetUpdatesPoolsAndDebitsAccount(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 10*unit)

	place(t, s, m.ID, alice, domain.OptionYes, 2*unit)
	place(t, s, m.ID, alice, domain.OptionNo, 1*unit)

	got, err := s.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3*unit), got.TotalPool)
	assert.Equal(t, got.TotalPool, got.OptionPools[0]+got.OptionPools[1])

	bal, err := s.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(7*unit), bal)
}

func TestPlaceBetInsufficientFunds(t *testing.T) {
	s := New(testParams())
	m := newMarket(t, s)
	fund(t, s, alice, unit)

	_, err := s.PlaceBet(context.Background(), domain.Bet{
		MarketID: m.ID, Bettor: alice, Option: 0, Amount: 2 * unit,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Failed transfer left the ledger untouched.
	got, err := s.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalPool)
}

func TestPoolConservationUnderManyBets(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 1000*unit)
	fund(t, s, bob, 1000*unit)

	for i := 0; i < 50; i++ {
		place(t, s, m.ID, alice, i%2, unit+int64(i)*1000)
		place(t, s, m.ID, bob, (i+1)%2, unit+int64(i)*777)

		got, err := s.GetMarket(ctx, m.ID)
		require.NoError(t, err)
		require.Equal(t, got.TotalPool, got.OptionPools[0]+got.OptionPools[1])
	}
}

func TestResolveThenClaim(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 2*unit)
	fund(t, s, bob, unit)

	place(t, s, m.ID, alice, domain.OptionYes, 2*unit)
	place(t, s, m.ID, bob, domain.OptionNo, unit)

	require.NoError(t, s.ResolveMarket(ctx, m.ID, domain.OptionYes))

	st, err := s.ClaimWinnings(ctx, m.ID, alice, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(2_980_000), st.Payout)
	assert.Equal(t, int64(20_000), st.Fee)
	assert.Equal(t, 1, st.Bets)

	bal, err := s.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2_980_000), bal)

	fees, err := s.CollectedFees(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), fees)

	// Loser has nothing to claim.
	_, err = s.ClaimWinnings(ctx, m.ID, bob, 200)
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)
}

func TestClaimTwiceFails(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 2*unit)
	fund(t, s, bob, unit)

	place(t, s, m.ID, alice, domain.OptionYes, 2*unit)
	place(t, s, m.ID, bob, domain.OptionNo, unit)
	require.NoError(t, s.ResolveMarket(ctx, m.ID, domain.OptionYes))

	_, err := s.ClaimWinnings(ctx, m.ID, alice, 200)
	require.NoError(t, err)

	_, err = s.ClaimWinnings(ctx, m.ID, alice, 200)
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)
}

func TestClaimAllOnWinningSide(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 2*unit)
	fund(t, s, bob, unit)

	// Both on the winning side; losing pool is empty.
	place(t, s, m.ID, alice, domain.OptionYes, 2*unit)
	place(t, s, m.ID, bob, domain.OptionYes, unit)
	require.NoError(t, s.ResolveMarket(ctx, m.ID, domain.OptionYes))

	stA, err := s.ClaimWinnings(ctx, m.ID, alice, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(2*unit), stA.Payout)
	assert.Zero(t, stA.Fee)

	stB, err := s.ClaimWinnings(ctx, m.ID, bob, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(unit), stB.Payout)
	assert.Zero(t, stB.Fee)

	fees, err := s.CollectedFees(ctx)
	require.NoError(t, err)
	assert.Zero(t, fees)
}

func TestClaimPreconditions(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)

	_, err := s.ClaimWinnings(ctx, common.HexToHash("0xdead"), alice, 200)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	_, err = s.ClaimWinnings(ctx, m.ID, alice, 200)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)

	require.NoError(t, s.ResolveMarket(ctx, m.ID, domain.OptionYes))
	_, err = s.ClaimWinnings(ctx, m.ID, alice, 200)
	assert.ErrorIs(t, err, domain.ErrNoBetsFound)
}

func TestCancelAndRefund(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 3*unit)

	place(t, s, m.ID, alice, domain.OptionYes, 2*unit)
	place(t, s, m.ID, alice, domain.OptionNo, unit)

	require.NoError(t, s.CancelMarket(ctx, m.ID))

	st, err := s.RefundBets(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(3*unit), st.Payout)
	assert.Zero(t, st.Fee)
	assert.Equal(t, 2, st.Bets)

	bal, err := s.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(3*unit), bal)

	_, err = s.RefundBets(ctx, m.ID, alice)
	assert.ErrorIs(t, err, domain.ErrNoRefundsAvailable)
}

func TestRefundPreconditions(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)

	// Active market cannot refund.
	_, err := s.RefundBets(ctx, m.ID, alice)
	assert.ErrorIs(t, err, domain.ErrMarketNotCancelled)

	// Cancelled market with no bets at all.
	require.NoError(t, s.CancelMarket(ctx, m.ID))
	_, err = s.RefundBets(ctx, m.ID, alice)
	assert.ErrorIs(t, err, domain.ErrNoBetsFound)
}

func TestTerminalTransitionsAreExclusive(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()

	m := newMarket(t, s)
	require.NoError(t, s.ResolveMarket(ctx, m.ID, domain.OptionNo))
	assert.ErrorIs(t, s.CancelMarket(ctx, m.ID), domain.ErrMarketNotActive)
	assert.ErrorIs(t, s.ResolveMarket(ctx, m.ID, domain.OptionYes), domain.ErrMarketNotActive)

	got, err := s.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, got.Status)
	assert.Equal(t, domain.OptionNo, got.WinningOption)
	// The locked status is reserved; nothing transitions into it.
	assert.NotEqual(t, domain.MarketStatusLocked, got.Status)
}

func TestBetsRejectedAfterTerminalStatus(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 5*unit)

	require.NoError(t, s.CancelMarket(ctx, m.ID))

	_, err := s.PlaceBet(ctx, domain.Bet{MarketID: m.ID, Bettor: alice, Option: 0, Amount: unit})
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestWithdrawFees(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 2*unit)
	fund(t, s, bob, unit)

	place(t, s, m.ID, alice, domain.OptionYes, 2*unit)
	place(t, s, m.ID, bob, domain.OptionNo, unit)
	require.NoError(t, s.ResolveMarket(ctx, m.ID, domain.OptionYes))
	_, err := s.ClaimWinnings(ctx, m.ID, alice, 200)
	require.NoError(t, err)

	amount, err := s.WithdrawFees(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), amount)

	bal, err := s.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, amount, bal)

	_, err = s.WithdrawFees(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrNoFeesToWithdraw)
}

func TestListBetsInsertionOrder(t *testing.T) {
	s := New(testParams())
	ctx := context.Background()
	m := newMarket(t, s)
	fund(t, s, alice, 10*unit)
	fund(t, s, bob, 10*unit)

	b1 := place(t, s, m.ID, alice, 0, unit)
	b2 := place(t, s, m.ID, bob, 1, unit)
	b3 := place(t, s, m.ID, alice, 1, unit)

	bets, err := s.ListBets(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bets, 3)
	assert.Equal(t, []int64{b1.ID, b2.ID, b3.ID}, []int64{bets[0].ID, bets[1].ID, bets[2].ID})

	mine, err := s.ListBettorBets(ctx, m.ID, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, b1.ID, mine[0].ID)
	assert.Equal(t, b3.ID, mine[1].ID)
}
