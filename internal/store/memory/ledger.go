// Package memory implements the ledger, admin, and account stores as a
// single mutex-guarded in-process structure. It backs the development mode
// and the test suite; semantics match the postgres implementation exactly.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/settle"
)

// Store holds every market, bet, account balance and admin parameter behind
// one mutex. Each public method is a complete transaction: it either applies
// all of its effects or none.
type Store struct {
	mu sync.Mutex

	markets map[common.Hash]*domain.Market
	bets    map[common.Hash][]*domain.Bet // insertion-ordered per market

	accounts map[common.Address]int64

	params        domain.Params
	resolvers     map[common.Address]bool
	collectedFees int64

	nextBetID int64
}

// New creates an empty Store with the given genesis parameters. The owner is
// expected to be registered as a resolver by the caller (services do this at
// wire time).
func New(params domain.Params) *Store {
	return &Store{
		markets:   make(map[common.Hash]*domain.Market),
		bets:      make(map[common.Hash][]*domain.Bet),
		accounts:  make(map[common.Address]int64),
		params:    params,
		resolvers: make(map[common.Address]bool),
		nextBetID: 1,
	}
}

// --- LedgerStore ---

func (s *Store) CreateMarket(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrDuplicateMarket
	}
	cp := m
	s.markets[m.ID] = &cp
	return nil
}

func (s *Store) GetMarket(_ context.Context, id common.Hash) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return *m, nil
}

func (s *Store) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusActive {
			active = append(active, *m)
		}
	}
	// Stable order: oldest first.
	sortMarketsByCreation(active)
	return paginate(active, opts), nil
}

// ListTerminalBefore returns resolved and cancelled markets whose resolution
// time is strictly before the cutoff, oldest first. The archiver reads
// through this.
func (s *Store) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var terminal []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusActive {
			continue
		}
		if m.ResolutionTime.Before(before) {
			terminal = append(terminal, *m)
		}
	}
	sortMarketsByCreation(terminal)
	return terminal, nil
}

func (s *Store) CountMarkets(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

func (s *Store) PlaceBet(_ context.Context, bet domain.Bet) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[bet.MarketID]
	if !ok {
		return domain.Bet{}, domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Bet{}, domain.ErrMarketNotActive
	}
	if s.accounts[bet.Bettor] < bet.Amount {
		return domain.Bet{}, domain.ErrInsufficientFunds
	}

	bet.ID = s.nextBetID
	s.nextBetID++
	bet.Claimed = false

	s.accounts[bet.Bettor] -= bet.Amount
	m.OptionPools[bet.Option] += bet.Amount
	m.TotalPool += bet.Amount

	cp := bet
	s.bets[bet.MarketID] = append(s.bets[bet.MarketID], &cp)
	return bet, nil
}

func (s *Store) ResolveMarket(_ context.Context, id common.Hash, winningOption int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotActive
	}
	m.Status = domain.MarketStatusResolved
	m.WinningOption = winningOption
	return nil
}

func (s *Store) CancelMarket(_ context.Context, id common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotActive
	}
	m.Status = domain.MarketStatusCancelled
	return nil
}

func (s *Store) ListBets(_ context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.bets[marketID]
	out := make([]domain.Bet, 0, len(all))
	for _, b := range all {
		out = append(out, *b)
	}
	return paginate(out, opts), nil
}

func (s *Store) ListBettorBets(_ context.Context, marketID common.Hash, bettor common.Address) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Bet
	for _, b := range s.bets[marketID] {
		if b.Bettor == bettor {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *Store) ClaimWinnings(_ context.Context, marketID common.Hash, bettor common.Address, feeBps int64) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.Settlement{}, domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusResolved {
		return domain.Settlement{}, domain.ErrMarketNotResolved
	}

	var mine []*domain.Bet
	for _, b := range s.bets[marketID] {
		if b.Bettor == bettor {
			mine = append(mine, b)
		}
	}
	if len(mine) == 0 {
		return domain.Settlement{}, domain.ErrNoBetsFound
	}

	st := domain.Settlement{MarketID: marketID, Bettor: bettor}
	var settled []*domain.Bet
	for _, b := range mine {
		if b.Claimed || b.Option != m.WinningOption {
			continue
		}
		payout, fee := settle.Payout(b.Amount, m.OptionPools, m.WinningOption, feeBps)
		st.Payout += payout
		st.Fee += fee
		settled = append(settled, b)
	}
	if st.Payout == 0 {
		return domain.Settlement{}, domain.ErrNoWinningsToClaim
	}

	// All checks passed; commit the marks, the fee accrual and the account
	// credit together.
	for _, b := range settled {
		b.Claimed = true
	}
	st.Bets = len(settled)
	s.collectedFees += st.Fee
	s.accounts[bettor] += st.Payout
	return st, nil
}

func (s *Store) RefundBets(_ context.Context, marketID common.Hash, bettor common.Address) (domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.Settlement{}, domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusCancelled {
		return domain.Settlement{}, domain.ErrMarketNotCancelled
	}

	var mine []*domain.Bet
	for _, b := range s.bets[marketID] {
		if b.Bettor == bettor {
			mine = append(mine, b)
		}
	}
	if len(mine) == 0 {
		return domain.Settlement{}, domain.ErrNoBetsFound
	}

	st := domain.Settlement{MarketID: marketID, Bettor: bettor}
	var refunded []*domain.Bet
	for _, b := range mine {
		if b.Claimed {
			continue
		}
		st.Payout += b.Amount
		refunded = append(refunded, b)
	}
	if len(refunded) == 0 {
		return domain.Settlement{}, domain.ErrNoRefundsAvailable
	}

	for _, b := range refunded {
		b.Claimed = true
	}
	st.Bets = len(refunded)
	s.accounts[bettor] += st.Payout
	return st, nil
}

// --- AdminStore ---

func (s *Store) GetParams(_ context.Context) (domain.Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params, nil
}

func (s *Store) SetFeeBps(_ context.Context, feeBps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params.FeeBps = feeBps
	return nil
}

func (s *Store) SetBetLimits(_ context.Context, minBet, maxBet int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params.MinBet = minBet
	s.params.MaxBet = maxBet
	return nil
}

func (s *Store) SetResolver(_ context.Context, resolver common.Address, authorized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if authorized {
		s.resolvers[resolver] = true
	} else {
		delete(s.resolvers, resolver)
	}
	return nil
}

func (s *Store) IsResolver(_ context.Context, resolver common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolvers[resolver], nil
}

func (s *Store) ListResolvers(_ context.Context) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Address, 0, len(s.resolvers))
	for addr := range s.resolvers {
		out = append(out, addr)
	}
	return out, nil
}

func (s *Store) CollectedFees(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectedFees, nil
}

func (s *Store) WithdrawFees(_ context.Context, to common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collectedFees == 0 {
		return 0, domain.ErrNoFeesToWithdraw
	}
	amount := s.collectedFees
	s.collectedFees = 0
	s.accounts[to] += amount
	return amount, nil
}

// --- AccountStore ---

func (s *Store) Balance(_ context.Context, addr common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[addr], nil
}

func (s *Store) Deposit(_ context.Context, addr common.Address, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[addr] += amount
	return nil
}

func (s *Store) Withdraw(_ context.Context, addr common.Address, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts[addr] < amount {
		return domain.ErrInsufficientFunds
	}
	s.accounts[addr] -= amount
	return nil
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore  = (*Store)(nil)
	_ domain.AdminStore   = (*Store)(nil)
	_ domain.AccountStore = (*Store)(nil)
)
