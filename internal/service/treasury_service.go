package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/treasury/evm"
)

// TreasuryService moves value between the outside world and internal ledger
// accounts. With an EVM bridge configured, deposits pull ERC20 into custody
// before crediting and withdrawals transfer out after debiting; without one
// (development mode) balances are moved directly.
type TreasuryService struct {
	accounts domain.AccountStore
	bridge   *evm.Bridge // nil when no chain is configured
	logger   *slog.Logger
}

// NewTreasuryService creates a TreasuryService. bridge may be nil.
func NewTreasuryService(accounts domain.AccountStore, bridge *evm.Bridge, logger *slog.Logger) *TreasuryService {
	return &TreasuryService{
		accounts: accounts,
		bridge:   bridge,
		logger:   logger.With(slog.String("component", "treasury_service")),
	}
}

// Balance returns an account's internal balance in micro-units.
func (s *TreasuryService) Balance(ctx context.Context, addr common.Address) (int64, error) {
	balance, err := s.accounts.Balance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("treasury_service: balance %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// Deposit credits an account. With a bridge, the on-chain pull into custody
// must land first; a failed transfer never credits the ledger.
func (s *TreasuryService) Deposit(ctx context.Context, addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("treasury_service: deposit amount must be positive")
	}

	if s.bridge != nil {
		txHash, err := s.bridge.TransferIn(ctx, addr, amount)
		if err != nil {
			return fmt.Errorf("treasury_service: deposit transfer for %s: %w", addr.Hex(), err)
		}
		s.logger.InfoContext(ctx, "deposit custody transfer mined",
			slog.String("address", addr.Hex()),
			slog.String("tx", txHash.Hex()),
			slog.Int64("amount", amount),
		)
	}

	if err := s.accounts.Deposit(ctx, addr, amount); err != nil {
		return fmt.Errorf("treasury_service: credit %s: %w", addr.Hex(), err)
	}
	return nil
}

// Withdraw debits an account and, with a bridge, transfers the tokens out of
// custody. If the on-chain transfer fails the debit is compensated so no
// value is stranded.
func (s *TreasuryService) Withdraw(ctx context.Context, addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("treasury_service: withdraw amount must be positive")
	}

	// Debit first so the balance can't be spent twice while the transfer is
	// in flight.
	if err := s.accounts.Withdraw(ctx, addr, amount); err != nil {
		return fmt.Errorf("treasury_service: debit %s: %w", addr.Hex(), err)
	}

	if s.bridge != nil {
		txHash, err := s.bridge.TransferOut(ctx, addr, amount)
		if err != nil {
			// Put the funds back; the ledger must not lose value on a failed
			// external transfer.
			if compErr := s.accounts.Deposit(ctx, addr, amount); compErr != nil {
				s.logger.ErrorContext(ctx, "withdraw compensation failed",
					slog.String("address", addr.Hex()),
					slog.Int64("amount", amount),
					slog.String("error", compErr.Error()),
				)
			}
			return fmt.Errorf("treasury_service: withdraw transfer for %s: %w", addr.Hex(), err)
		}
		s.logger.InfoContext(ctx, "withdraw custody transfer mined",
			slog.String("address", addr.Hex()),
			slog.String("tx", txHash.Hex()),
			slog.Int64("amount", amount),
		)
	}
	return nil
}
