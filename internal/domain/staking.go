package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrActionInProgress    = errors.New("another action is already in progress")
	ErrWalletNotConnected  = errors.New("no wallet connected")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrAlreadyStarted      = errors.New("aggregator already started")
)

// ZeroAddress marks a gauge that has not been deployed yet.
var ZeroAddress = common.Address{}

type GaugeStatus string

const (
	GaugePending GaugeStatus = "pending"
	GaugeLive    GaugeStatus = "live"
	GaugeEnded   GaugeStatus = "ended"
)

// GaugeConfig is the static descriptor of one reward stream.
type GaugeConfig struct {
	Symbol       string         `json:"symbol"`
	TokenAddress common.Address `json:"token_address"`
	GaugeAddress common.Address `json:"gauge_address"`
	Decimals     int32          `json:"decimals"`
	Pool         string         `json:"pool"`
	Week         int            `json:"week"`
}

func (g GaugeConfig) Deployed() bool {
	return g.GaugeAddress != ZeroAddress
}

type HubState struct {
	TotalStaked     Amount `json:"total_staked"`
	RewardRate      Amount `json:"reward_rate"`
	PeriodFinish    int64  `json:"period_finish"`
	RewardsDuration int64  `json:"rewards_duration"`
}

// GaugeReading is the raw on-chain state of a deployed gauge.
type GaugeReading struct {
	RewardRate      Amount
	PeriodFinish    int64
	RewardsDuration int64
	Earned          Amount
}

type GaugeState struct {
	GaugeConfig
	RewardRate      Amount      `json:"reward_rate"`
	PeriodFinish    int64       `json:"period_finish"`
	RewardsDuration int64       `json:"rewards_duration"`
	Earned          Amount      `json:"earned"`
	InAssetAPR      float64     `json:"in_asset_apr"`
	RewardsPerDay   float64     `json:"rewards_per_day"`
	Status          GaugeStatus `json:"status"`
}

// PendingGaugeState is the placeholder for gauges that are not deployed or not read yet.
func PendingGaugeState(cfg GaugeConfig) GaugeState {
	return GaugeState{GaugeConfig: cfg, Status: GaugePending}
}

type UserPosition struct {
	Wallet    common.Address `json:"wallet"`
	Staked    Amount         `json:"staked"`
	Earned    Amount         `json:"earned"`
	Allowance Amount         `json:"allowance"`
	Balance   Amount         `json:"balance"`
}

type GaugeDisplay struct {
	Symbol    string `json:"symbol"`
	Status    string `json:"status"`
	APR       string `json:"apr"`
	Remaining string `json:"remaining"`
	Earned    string `json:"earned"`
}

// Display carries the pre-formatted strings a page renders as-is.
type Display struct {
	TotalStaked  string         `json:"total_staked"`
	HubAPR       string         `json:"hub_apr"`
	ActiveGauges string         `json:"active_gauges"`
	Staked       string         `json:"staked,omitempty"`
	Earned       string         `json:"earned,omitempty"`
	Balance      string         `json:"balance,omitempty"`
	Wallet       string         `json:"wallet,omitempty"`
	Gauges       []GaugeDisplay `json:"gauges"`
}

// DashboardViewModel is rebuilt from scratch every cycle and replaced as a whole.
type DashboardViewModel struct {
	CycleID   string        `json:"cycle_id"`
	UpdatedAt time.Time     `json:"updated_at"`
	Hub       HubState      `json:"hub"`
	HubAPR    float64       `json:"hub_apr"`
	Gauges    []GaugeState  `json:"gauges"`
	User      *UserPosition `json:"user,omitempty"`
	Display   Display       `json:"display"`
}

func (vm *DashboardViewModel) LiveGauges() int {
	count := 0
	for _, g := range vm.Gauges {
		if g.Status == GaugeLive {
			count++
		}
	}
	return count
}

func (vm *DashboardViewModel) Gauge(symbol string) (GaugeState, bool) {
	for _, g := range vm.Gauges {
		if g.Symbol == symbol {
			return g, true
		}
	}
	return GaugeState{}, false
}

type ActionKind string

const (
	ActionApprove  ActionKind = "approve"
	ActionStake    ActionKind = "stake"
	ActionWithdraw ActionKind = "withdraw"
	ActionClaim    ActionKind = "claim"
	ActionExit     ActionKind = "exit"
)

func (k ActionKind) Title() string {
	switch k {
	case ActionApprove:
		return "Approval"
	case ActionStake:
		return "Stake"
	case ActionWithdraw:
		return "Withdraw"
	case ActionClaim:
		return "Claim"
	case ActionExit:
		return "Exit"
	default:
		return string(k)
	}
}

type ActionOutcome struct {
	Action  ActionKind `json:"action"`
	TxHash  string     `json:"tx_hash,omitempty"`
	Skipped bool       `json:"skipped"`
}

// ActionError is what a failed submission surfaces: one readable message plus the cause.
type ActionError struct {
	Action ActionKind
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action.Title(), e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Affordances tells the presentation layer which actions it may enable.
type Affordances struct {
	WalletConnected bool   `json:"wallet_connected"`
	InFlight        string `json:"in_flight,omitempty"`
	NeedsApproval   bool   `json:"needs_approval"`
	CanApprove      bool   `json:"can_approve"`
	CanStake        bool   `json:"can_stake"`
	CanWithdraw     bool   `json:"can_withdraw"`
	CanClaim        bool   `json:"can_claim"`
	CanExit         bool   `json:"can_exit"`
	MaxStake        string `json:"max_stake"`
	MaxWithdraw     string `json:"max_withdraw"`
}

type ChainReader interface {
	ReadHub(ctx context.Context, hub common.Address) HubState
	ReadGauge(ctx context.Context, gauge GaugeConfig, wallet *common.Address) GaugeReading
	ReadUser(ctx context.Context, hub, token, wallet common.Address) UserPosition
}

// Wallet signs and broadcasts transactions on behalf of the connected account.
type Wallet interface {
	Address() common.Address
	Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

type SnapshotRecorder interface {
	RecordSnapshot(ctx context.Context, vm *DashboardViewModel) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type DashboardService interface {
	Start() error
	Stop()
	Refresh(ctx context.Context) (*DashboardViewModel, error)
	ViewModel() *DashboardViewModel
	Subscribe() (<-chan *DashboardViewModel, func())
}

type ActionService interface {
	Approve(ctx context.Context) (ActionOutcome, error)
	Stake(ctx context.Context, amount string) (ActionOutcome, error)
	Withdraw(ctx context.Context, amount string) (ActionOutcome, error)
	Claim(ctx context.Context) (ActionOutcome, error)
	Exit(ctx context.Context) (ActionOutcome, error)
	InFlight() ActionKind
	Connected() bool
}
