package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolwise/poolmarket/internal/domain"
	"github.com/poolwise/poolmarket/internal/notify"
	"github.com/poolwise/poolmarket/internal/settle"
)

// AdminService gates parameter changes, resolver authorization, and fee
// withdrawal behind the owner identity fixed at deployment.
type AdminService struct {
	admin    domain.AdminStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	owner    common.Address
	logger   *slog.Logger
}

// NewAdminService creates an AdminService for the given owner.
func NewAdminService(
	admin domain.AdminStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	owner common.Address,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		admin:    admin,
		bus:      bus,
		notifier: notifier,
		owner:    owner,
		logger:   logger.With(slog.String("component", "admin_service")),
	}
}

// Owner returns the owner identity.
func (s *AdminService) Owner() common.Address {
	return s.owner
}

func (s *AdminService) requireOwner(caller common.Address) error {
	if caller != s.owner {
		return domain.ErrNotOwner
	}
	return nil
}

// GetParams returns the current parameter snapshot.
func (s *AdminService) GetParams(ctx context.Context) (domain.Params, error) {
	params, err := s.admin.GetParams(ctx)
	if err != nil {
		return domain.Params{}, fmt.Errorf("admin_service: get params: %w", err)
	}
	return params, nil
}

// SetPlatformFee updates the fee rate, capped at the 1000 bps ceiling.
func (s *AdminService) SetPlatformFee(ctx context.Context, caller common.Address, feeBps int64) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if feeBps < 0 || feeBps > settle.MaxFeeBps {
		return domain.ErrFeeTooHigh
	}
	if err := s.admin.SetFeeBps(ctx, feeBps); err != nil {
		return fmt.Errorf("admin_service: set fee: %w", err)
	}

	s.logger.InfoContext(ctx, "platform fee updated", slog.Int64("fee_bps", feeBps))
	publish(ctx, s.bus, s.logger, domain.ChannelAdmin,
		domain.NewEvent(domain.EventFeeUpdated, map[string]int64{"fee_bps": feeBps}))
	return nil
}

// SetBetLimits updates the bet-size bounds applied to future placements.
func (s *AdminService) SetBetLimits(ctx context.Context, caller common.Address, minBet, maxBet int64) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if minBet <= 0 || minBet >= maxBet {
		return domain.ErrInvalidLimits
	}
	if err := s.admin.SetBetLimits(ctx, minBet, maxBet); err != nil {
		return fmt.Errorf("admin_service: set limits: %w", err)
	}

	s.logger.InfoContext(ctx, "bet limits updated",
		slog.Int64("min_bet", minBet),
		slog.Int64("max_bet", maxBet),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelAdmin,
		domain.NewEvent(domain.EventLimitsUpdated, map[string]int64{"min_bet": minBet, "max_bet": maxBet}))
	return nil
}

// SetResolver toggles an address's membership in the authorized-resolver set.
func (s *AdminService) SetResolver(ctx context.Context, caller, resolver common.Address, authorized bool) error {
	if err := s.requireOwner(caller); err != nil {
		return err
	}
	if resolver == (common.Address{}) {
		return domain.ErrInvalidResolverAddress
	}
	if err := s.admin.SetResolver(ctx, resolver, authorized); err != nil {
		return fmt.Errorf("admin_service: set resolver: %w", err)
	}

	s.logger.InfoContext(ctx, "resolver updated",
		slog.String("resolver", resolver.Hex()),
		slog.Bool("authorized", authorized),
	)
	publish(ctx, s.bus, s.logger, domain.ChannelAdmin,
		domain.NewEvent(domain.EventResolverUpdated, map[string]any{
			"resolver":   resolver.Hex(),
			"authorized": authorized,
		}))
	return nil
}

// ListResolvers returns the authorized-resolver set.
func (s *AdminService) ListResolvers(ctx context.Context) ([]common.Address, error) {
	resolvers, err := s.admin.ListResolvers(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin_service: list resolvers: %w", err)
	}
	return resolvers, nil
}

// CollectedFees returns the accrued, unwithdrawn platform fees.
func (s *AdminService) CollectedFees(ctx context.Context) (int64, error) {
	fees, err := s.admin.CollectedFees(ctx)
	if err != nil {
		return 0, fmt.Errorf("admin_service: collected fees: %w", err)
	}
	return fees, nil
}

// WithdrawFees moves the full collected-fee balance to the owner's account
// and zeroes the accumulator.
func (s *AdminService) WithdrawFees(ctx context.Context, caller common.Address) (int64, error) {
	if err := s.requireOwner(caller); err != nil {
		return 0, err
	}

	amount, err := s.admin.WithdrawFees(ctx, s.owner)
	if err != nil {
		return 0, fmt.Errorf("admin_service: withdraw fees: %w", err)
	}

	s.logger.InfoContext(ctx, "fees withdrawn", slog.Int64("amount", amount))
	publish(ctx, s.bus, s.logger, domain.ChannelAdmin,
		domain.NewEvent(domain.EventFeesWithdrawn, map[string]int64{"amount": amount}))
	if s.notifier != nil {
		if nErr := s.notifier.Notify(ctx, domain.EventFeesWithdrawn, "Fees withdrawn",
			fmt.Sprintf("withdrew %d micro-units of platform fees", amount)); nErr != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", nErr.Error()))
		}
	}
	return amount, nil
}
