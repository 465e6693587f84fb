package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/store/memory"
)

const unit = int64(1_000_000)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	resolver = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type fixture struct {
	store      *memory.Store
	markets    *MarketService
	betting    *BettingService
	settlement *SettlementService
	admin      *AdminService
	treasury   *TreasuryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New(domain.Params{FeeBps: 200, MinBet: unit / 100, MaxBet: 1_000 * unit})
	locks := memory.NewLockManager()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		store:      st,
		markets:    NewMarketService(st, st, nil, nil, locks, nil, owner, logger),
		betting:    NewBettingService(st, st, nil, nil, locks, logger),
		settlement: NewSettlementService(st, st, nil, locks, logger),
		admin:      NewAdminService(st, nil, nil, owner, logger),
		treasury:   NewTreasuryService(st, nil, logger),
	}
}

// seedMarket inserts an active market directly so tests can control the
// resolution time, including times already in the past.
func (f *fixture) seedMarket(t *testing.T, creator common.Address, resolutionTime time.Time) domain.Market {
	t.Helper()

	now := time.Now().UTC()
	m := domain.Market{
		ID:             domain.DeriveMarketID(creator, now, "Will ETH close above 5000 USDC?"),
		Type:           domain.MarketTypeTransfer,
		Question:       "Will ETH close above 5000 USDC?",
		Creator:        creator,
		CreatedAt:      now,
		ResolutionTime: resolutionTime.UTC(),
		Status:         domain.MarketStatusActive,
		DataSourceID:   "coingecko:ethereum",
		Comparator:     domain.ComparatorGreaterThan,
		Threshold:      5_000 * unit,
	}
	require.NoError(t, f.store.CreateMarket(context.Background(), m))
	return m
}

func (f *fixture) fund(t *testing.T, addr common.Address, amount int64) {
	t.Helper()
	require.NoError(t, f.store.Deposit(context.Background(), addr, amount))
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.markets.CreateMarket(ctx, CreateMarketRequest{
		Creator:        alice,
		Question:       "   ",
		ResolutionTime: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)

	_, err = f.markets.CreateMarket(ctx, CreateMarketRequest{
		Creator:        alice,
		Question:       "Will it rain tomorrow?",
		ResolutionTime: time.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidResolutionTime)
}

func TestCreateMarketStartsActiveWithEmptyPools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.markets.CreateMarket(ctx, CreateMarketRequest{
		Creator:        alice,
		Type:           domain.MarketTypeBlock,
		Question:       "Will block 25000000 arrive before Friday?",
		ResolutionTime: time.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	assert.Zero(t, m.TotalPool)
	assert.Zero(t, m.OptionPools[domain.OptionYes])
	assert.Zero(t, m.OptionPools[domain.OptionNo])

	got, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	count, err := f.markets.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPlaceBetBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))
	f.fund(t, bob, 10_000*unit)

	_, err := f.betting.PlaceBet(ctx, m.ID, bob, 3, unit)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, unit/1000)
	assert.ErrorIs(t, err, domain.ErrBetTooSmall)

	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, 5_000*unit)
	assert.ErrorIs(t, err, domain.ErrBetTooLarge)

	bet, err := f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, 2*unit)
	require.NoError(t, err)
	assert.Equal(t, 2*unit, bet.Amount)
	assert.False(t, bet.Claimed)

	got, err := f.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*unit, got.OptionPools[domain.OptionYes])
	assert.Equal(t, 2*unit, got.TotalPool)

	balance, err := f.treasury.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 9_998*unit, balance)
}

func TestResolveMarketAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(-time.Minute))

	_, err := f.markets.ResolveMarket(ctx, m.ID, domain.OptionYes, bob)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	// Authorized resolvers are added by the owner.
	require.NoError(t, f.admin.SetResolver(ctx, owner, resolver, true))
	resolved, err := f.markets.ResolveMarket(ctx, m.ID, domain.OptionYes, resolver)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, resolved.Status)
	assert.Equal(t, domain.OptionYes, resolved.WinningOption)
}

func TestResolveMarketTiming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))

	_, err := f.markets.ResolveMarket(ctx, m.ID, domain.OptionNo, owner)
	assert.ErrorIs(t, err, domain.ErrTooEarly)

	_, err = f.markets.ResolveMarket(ctx, m.ID, 7, owner)
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestResolveMarketTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(-time.Minute))

	_, err := f.markets.ResolveMarket(ctx, m.ID, domain.OptionYes, owner)
	require.NoError(t, err)

	_, err = f.markets.ResolveMarket(ctx, m.ID, domain.OptionNo, owner)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)

	_, err = f.markets.CancelMarket(ctx, m.ID, owner)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestCancelMarketAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))

	_, err := f.markets.CancelMarket(ctx, m.ID, bob)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	cancelled, err := f.markets.CancelMarket(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusCancelled, cancelled.Status)
}

func TestClaimWinningsEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(-time.Minute))
	f.fund(t, alice, 2*unit)
	f.fund(t, bob, unit)

	_, err := f.betting.PlaceBet(ctx, m.ID, alice, domain.OptionYes, 2*unit)
	require.NoError(t, err)
	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionNo, unit)
	require.NoError(t, err)

	_, err = f.markets.ResolveMarket(ctx, m.ID, domain.OptionYes, owner)
	require.NoError(t, err)

	// Share 1.0 on a 2.0 stake, 2% fee on the 1.0 profit.
	st, err := f.settlement.ClaimWinnings(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2_980_000), st.Payout)
	assert.Equal(t, int64(20_000), st.Fee)
	assert.Equal(t, 1, st.Bets)

	balance, err := f.treasury.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2_980_000), balance)

	_, err = f.settlement.ClaimWinnings(ctx, m.ID, alice)
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)

	_, err = f.settlement.ClaimWinnings(ctx, m.ID, bob)
	assert.ErrorIs(t, err, domain.ErrNoWinningsToClaim)

	fees, err := f.admin.CollectedFees(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), fees)
}

func TestClaimBeforeResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))
	f.fund(t, bob, unit)

	_, err := f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, unit)
	require.NoError(t, err)

	_, err = f.settlement.ClaimWinnings(ctx, m.ID, bob)
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)
}

func TestRefundAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))
	f.fund(t, bob, 5*unit)

	_, err := f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, 2*unit)
	require.NoError(t, err)
	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionNo, unit)
	require.NoError(t, err)

	// Refund path opens only after cancellation.
	_, err = f.settlement.RefundBets(ctx, m.ID, bob)
	assert.ErrorIs(t, err, domain.ErrMarketNotCancelled)

	_, err = f.markets.CancelMarket(ctx, m.ID, alice)
	require.NoError(t, err)

	st, err := f.settlement.RefundBets(ctx, m.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, 3*unit, st.Payout)
	assert.Zero(t, st.Fee)
	assert.Equal(t, 2, st.Bets)

	balance, err := f.treasury.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 5*unit, balance)

	_, err = f.settlement.RefundBets(ctx, m.ID, bob)
	assert.ErrorIs(t, err, domain.ErrNoRefundsAvailable)
}

func TestGetOddsDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))

	odds, err := f.markets.GetOdds(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, [2]float64{2.0, 2.0}, odds)

	f.fund(t, bob, 4*unit)
	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, 3*unit)
	require.NoError(t, err)
	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionNo, unit)
	require.NoError(t, err)

	odds, err = f.markets.GetOdds(ctx, m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, odds[domain.OptionYes], 1e-9)
	assert.InDelta(t, 4.0, odds[domain.OptionNo], 1e-9)
}

func TestAdminFeeBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.admin.SetPlatformFee(ctx, alice, 100), domain.ErrNotOwner)
	assert.ErrorIs(t, f.admin.SetPlatformFee(ctx, owner, 1_001), domain.ErrFeeTooHigh)
	assert.ErrorIs(t, f.admin.SetPlatformFee(ctx, owner, -1), domain.ErrFeeTooHigh)

	require.NoError(t, f.admin.SetPlatformFee(ctx, owner, 1_000))
	params, err := f.admin.GetParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), params.FeeBps)
}

func TestAdminBetLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.admin.SetBetLimits(ctx, owner, 0, unit), domain.ErrInvalidLimits)
	assert.ErrorIs(t, f.admin.SetBetLimits(ctx, owner, unit, unit), domain.ErrInvalidLimits)
	assert.ErrorIs(t, f.admin.SetBetLimits(ctx, bob, unit, 2*unit), domain.ErrNotOwner)

	require.NoError(t, f.admin.SetBetLimits(ctx, owner, unit, 10*unit))
	params, err := f.admin.GetParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, unit, params.MinBet)
	assert.Equal(t, 10*unit, params.MaxBet)
}

func TestAdminResolverSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.admin.SetResolver(ctx, owner, common.Address{}, true), domain.ErrInvalidResolverAddress)
	assert.ErrorIs(t, f.admin.SetResolver(ctx, alice, resolver, true), domain.ErrNotOwner)

	require.NoError(t, f.admin.SetResolver(ctx, owner, resolver, true))
	resolvers, err := f.admin.ListResolvers(ctx)
	require.NoError(t, err)
	assert.Contains(t, resolvers, resolver)

	require.NoError(t, f.admin.SetResolver(ctx, owner, resolver, false))
	resolvers, err = f.admin.ListResolvers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, resolvers, resolver)
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(-time.Minute))
	f.fund(t, alice, 2*unit)
	f.fund(t, bob, unit)

	_, err := f.betting.PlaceBet(ctx, m.ID, alice, domain.OptionYes, 2*unit)
	require.NoError(t, err)
	_, err = f.betting.PlaceBet(ctx, m.ID, bob, domain.OptionNo, unit)
	require.NoError(t, err)
	_, err = f.markets.ResolveMarket(ctx, m.ID, domain.OptionYes, owner)
	require.NoError(t, err)
	_, err = f.settlement.ClaimWinnings(ctx, m.ID, alice)
	require.NoError(t, err)

	_, err = f.admin.WithdrawFees(ctx, bob)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	amount, err := f.admin.WithdrawFees(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), amount)

	balance, err := f.treasury.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), balance)

	_, err = f.admin.WithdrawFees(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrNoFeesToWithdraw)
}

func TestTreasuryDepositWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.treasury.Deposit(ctx, alice, 5*unit))
	balance, err := f.treasury.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 5*unit, balance)

	require.NoError(t, f.treasury.Withdraw(ctx, alice, 2*unit))
	balance, err = f.treasury.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3*unit, balance)

	err = f.treasury.Withdraw(ctx, alice, 10*unit)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = f.treasury.Deposit(ctx, alice, 0)
	assert.Error(t, err)
}

func TestLockContentionRejectsSecondCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMarket(t, alice, time.Now().Add(time.Hour))
	f.fund(t, bob, 2*unit)

	locks := memory.NewLockManager()
	betting := NewBettingService(f.store, f.store, nil, nil, locks,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	unlock, err := locks.Acquire(ctx, domain.MarketLockKey(m.ID), time.Minute)
	require.NoError(t, err)

	_, err = betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, unit)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	_, err = betting.PlaceBet(ctx, m.ID, bob, domain.OptionYes, unit)
	require.NoError(t, err)
}
