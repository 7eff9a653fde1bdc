package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/internal/infrastructure/chain"
	"github.com/chaostheory/staking-service/pkg/config"
	"github.com/chaostheory/staking-service/pkg/format"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/chaostheory/staking-service/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
)

type refresher interface {
	Refresh(ctx context.Context) (*domain.DashboardViewModel, error)
}

// Submitter sends the five staking transactions, one at a time.
type Submitter struct {
	wallet    domain.Wallet
	dashboard refresher
	staking   *config.Staking
	config    *config.Submitter
	logger    *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inFlight domain.ActionKind
}

// NewSubmitter wires a submitter. A nil wallet leaves the service read-only: every action
// then fails with ErrWalletNotConnected.
func NewSubmitter(
	wallet domain.Wallet,
	dashboard refresher,
	staking *config.Staking,
	config *config.Submitter,
	logger *logger.Logger,
) *Submitter {
	return &Submitter{
		wallet:    wallet,
		dashboard: dashboard,
		staking:   staking,
		config:    config,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Approve grants the hub an unlimited allowance on the staking token.
func (s *Submitter) Approve(ctx context.Context) (domain.ActionOutcome, error) {
	data, err := chain.ERC20ABI.Pack("approve", s.staking.HubAddress, math.MaxBig256)
	if err != nil {
		return domain.ActionOutcome{}, &domain.ActionError{Action: domain.ActionApprove, Err: err}
	}
	return s.submit(ctx, domain.ActionApprove, s.staking.TokenAddress, data)
}

func (s *Submitter) Stake(ctx context.Context, amount string) (domain.ActionOutcome, error) {
	return s.submitAmount(ctx, domain.ActionStake, "stake", amount)
}

func (s *Submitter) Withdraw(ctx context.Context, amount string) (domain.ActionOutcome, error) {
	return s.submitAmount(ctx, domain.ActionWithdraw, "withdraw", amount)
}

// Claim collects the hub reward and every live gauge reward in one hub call.
func (s *Submitter) Claim(ctx context.Context) (domain.ActionOutcome, error) {
	return s.submitHubCall(ctx, domain.ActionClaim, "getReward")
}

func (s *Submitter) Exit(ctx context.Context) (domain.ActionOutcome, error) {
	return s.submitHubCall(ctx, domain.ActionExit, "exit")
}

// InFlight reports the action currently being submitted, or "" when idle.
func (s *Submitter) InFlight() domain.ActionKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Submitter) Connected() bool {
	return s.wallet != nil
}

func (s *Submitter) submitAmount(ctx context.Context, kind domain.ActionKind, method, amount string) (domain.ActionOutcome, error) {
	wei := format.ParseToWei(amount, s.staking.StakingDecimals)
	if wei.Sign() <= 0 {
		s.logger.Debugw("Ignoring action with empty or non-positive amount", "action", kind, "amount", amount)
		return domain.ActionOutcome{Action: kind, Skipped: true}, nil
	}

	data, err := chain.StakingHubABI.Pack(method, wei)
	if err != nil {
		return domain.ActionOutcome{}, &domain.ActionError{Action: kind, Err: err}
	}
	return s.submit(ctx, kind, s.staking.HubAddress, data)
}

func (s *Submitter) submitHubCall(ctx context.Context, kind domain.ActionKind, method string) (domain.ActionOutcome, error) {
	data, err := chain.StakingHubABI.Pack(method)
	if err != nil {
		return domain.ActionOutcome{}, &domain.ActionError{Action: kind, Err: err}
	}
	return s.submit(ctx, kind, s.staking.HubAddress, data)
}

func (s *Submitter) submit(ctx context.Context, kind domain.ActionKind, to common.Address, data []byte) (domain.ActionOutcome, error) {
	if !s.begin(kind) {
		return domain.ActionOutcome{}, domain.ErrActionInProgress
	}
	defer s.finish()

	outcome := domain.ActionOutcome{Action: kind}

	txHash, err := s.execute(ctx, to, data)
	outcome.TxHash = txHash
	if err != nil {
		metrics.RecordTransaction(string(kind), "error")
		s.logger.Errorw("Action failed", "action", kind, "tx_hash", txHash, "error", err)
		return outcome, &domain.ActionError{Action: kind, Err: err}
	}

	metrics.RecordTransaction(string(kind), "success")
	s.logger.Infow("Action confirmed", "action", kind, "tx_hash", txHash)

	// the transaction already settled; a failed refresh only delays the new figures
	if _, err := s.dashboard.Refresh(ctx); err != nil {
		s.logger.Warnw("Refresh after action failed", "action", kind, "error", err)
	}

	return outcome, nil
}

func (s *Submitter) execute(ctx context.Context, to common.Address, data []byte) (string, error) {
	if s.wallet == nil {
		return "", domain.ErrWalletNotConnected
	}

	tx, err := s.wallet.Send(ctx, to, data)
	if err != nil {
		return "", err
	}
	hash := tx.Hash().Hex()

	if err := s.settle(ctx, tx); err != nil {
		return hash, err
	}
	return hash, nil
}

func (s *Submitter) settle(ctx context.Context, tx *types.Transaction) error {
	if s.config.ConfirmMode == config.ConfirmDelay {
		return s.sleep(ctx, s.config.SettleDelay)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.config.ConfirmTimeout)
	defer cancel()

	receipt, err := s.wallet.WaitMined(confirmCtx, tx)
	if err != nil {
		return fmt.Errorf("confirmation not received: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w in block %v", domain.ErrTransactionReverted, receipt.BlockNumber)
	}
	return nil
}

func (s *Submitter) begin(kind domain.ActionKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight != "" {
		return false
	}
	s.inFlight = kind
	return true
}

func (s *Submitter) finish() {
	s.mu.Lock()
	s.inFlight = ""
	s.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
