package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
)

// BettingService records stakes against active markets. Bet bounds are
// checked against the parameter snapshot current at placement time; limit
// changes never apply retroactively.
type BettingService struct {
	ledger domain.LedgerStore
	admin  domain.AdminStore
	cache  domain.MarketCache
	bus    domain.SignalBus
	locks  domain.LockManager
	logger *slog.Logger
}

// NewBettingService creates a BettingService.
func NewBettingService(
	ledger domain.LedgerStore,
	admin domain.AdminStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	logger *slog.Logger,
) *BettingService {
	return &BettingService{
		ledger: ledger,
		admin:  admin,
		cache:  cache,
		bus:    bus,
		locks:  locks,
		logger: logger.With(slog.String("component", "betting_service")),
	}
}

// PlaceBet stakes amount micro-units on one option of an active market. The
// bettor's account is debited atomically with the bet append and pool
// increments; a failed debit leaves the ledger untouched.
func (s *BettingService) PlaceBet(ctx context.Context, marketID common.Hash, bettor common.Address, option int, amount int64) (domain.Bet, error) {
	if !domain.ValidOption(option) {
		return domain.Bet{}, domain.ErrInvalidOption
	}

	params, err := s.admin.GetParams(ctx)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("betting_service: get params: %w", err)
	}
	if amount < params.MinBet {
		return domain.Bet{}, domain.ErrBetTooSmall
	}
	if amount > params.MaxBet {
		return domain.Bet{}, domain.ErrBetTooLarge
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), 10*time.Second)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("betting_service: lock %s: %w", marketID.Hex(), err)
	}
	defer unlock()

	bet, err := s.ledger.PlaceBet(ctx, domain.Bet{
		MarketID: marketID,
		Bettor:   bettor,
		Option:   option,
		Amount:   amount,
		PlacedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("betting_service: place bet on %s: %w", marketID.Hex(), err)
	}

	// Pools changed; drop the cached market so readers see fresh totals.
	if s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx, marketID); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache invalidate failed",
				slog.String("market_id", marketID.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("market_id", marketID.Hex()),
		slog.String("bettor", bettor.Hex()),
		slog.Int("option", option),
		slog.Int64("amount", amount),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelBet, domain.NewEvent(domain.EventBetPlaced, bet))
	return bet, nil
}

// ListBets returns all bets on a market in placement order.
func (s *BettingService) ListBets(ctx context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.ledger.ListBets(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("betting_service: list bets for %s: %w", marketID.Hex(), err)
	}
	return bets, nil
}

// ListBettorBets returns one bettor's bets on a market in placement order.
func (s *BettingService) ListBettorBets(ctx context.Context, marketID common.Hash, bettor common.Address) ([]domain.Bet, error) {
	bets, err := s.ledger.ListBettorBets(ctx, marketID, bettor)
	if err != nil {
		return nil, fmt.Errorf("betting_service: list bettor bets for %s: %w", marketID.Hex(), err)
	}
	return bets, nil
}
