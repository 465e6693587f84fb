package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
)

// SettlementService converts bets into payouts once a market reaches a
// terminal status: proportional winnings on resolved markets, full principal
// refunds on cancelled ones. The store marks bets claimed in the same
// transaction that credits the bettor, so a bet can never pay twice.
type SettlementService struct {
	ledger domain.LedgerStore
	admin  domain.AdminStore
	bus    domain.SignalBus
	locks  domain.LockManager
	logger *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	ledger domain.LedgerStore,
	admin domain.AdminStore,
	bus domain.SignalBus,
	locks domain.LockManager,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		ledger: ledger,
		admin:  admin,
		bus:    bus,
		locks:  locks,
		logger: logger.With(slog.String("component", "settlement_service")),
	}
}

// ClaimWinnings settles every unclaimed winning bet the caller holds on a
// resolved market and credits the summed payout in one transfer. The fee
// rate applied is the rate current at claim time.
func (s *SettlementService) ClaimWinnings(ctx context.Context, marketID common.Hash, bettor common.Address) (domain.Settlement, error) {
	params, err := s.admin.GetParams(ctx)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: get params: %w", err)
	}

	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), 10*time.Second)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: lock %s: %w", marketID.Hex(), err)
	}
	defer unlock()

	st, err := s.ledger.ClaimWinnings(ctx, marketID, bettor, params.FeeBps)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: claim on %s: %w", marketID.Hex(), err)
	}

	s.logger.InfoContext(ctx, "winnings claimed",
		slog.String("market_id", marketID.Hex()),
		slog.String("bettor", bettor.Hex()),
		slog.Int64("payout", st.Payout),
		slog.Int64("fee", st.Fee),
		slog.Int("bets", st.Bets),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelSettle, domain.NewEvent(domain.EventWinningsClaimed, st))
	return st, nil
}

// RefundBets returns the full principal of every unclaimed bet the caller
// holds on a cancelled market. No fee applies.
func (s *SettlementService) RefundBets(ctx context.Context, marketID common.Hash, bettor common.Address) (domain.Settlement, error) {
	unlock, err := s.locks.Acquire(ctx, domain.MarketLockKey(marketID), 10*time.Second)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: lock %s: %w", marketID.Hex(), err)
	}
	defer unlock()

	st, err := s.ledger.RefundBets(ctx, marketID, bettor)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: refund on %s: %w", marketID.Hex(), err)
	}

	s.logger.InfoContext(ctx, "bets refunded",
		slog.String("market_id", marketID.Hex()),
		slog.String("bettor", bettor.Hex()),
		slog.Int64("amount", st.Payout),
		slog.Int("bets", st.Bets),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelSettle, domain.NewEvent(domain.EventBetsRefunded, st))
	return st, nil
}
