package testutil

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	HubAddress    = common.HexToAddress("0x70e6c917A8AC437E629B67E84C0C0678eD54460d")
	TokenAddress  = common.HexToAddress("0xfab2ee8eb6b26208bfb5c41012661e62b4dc9292")
	WalletAddress = common.HexToAddress("0x3CE26de6FF74e0Baa5F762b67465eEacfE84549F")
)

// Tokens converts whole tokens to an 18-decimal Amount.
func Tokens(n int64) domain.Amount {
	v := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return domain.NewAmount(v)
}

// Gauges returns a small gauge set: one deployed 18-decimal gauge, one deployed 6-decimal
// gauge and one undeployed sentinel.
func Gauges() []domain.GaugeConfig {
	return []domain.GaugeConfig{
		{
			Symbol:       "ARBME",
			TokenAddress: common.HexToAddress("0xC647421C5Dc78D1c3960faA7A33f9aEFDF4B7B07"),
			GaugeAddress: common.HexToAddress("0x37547710faE12B4be7458b5E87C3106a85CfD72F"),
			Decimals:     18,
			Pool:         "CHAOS / ARBME",
			Week:         1,
		},
		{
			Symbol:       "USDC",
			TokenAddress: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			GaugeAddress: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
			Decimals:     6,
			Pool:         "CHAOS / USDC",
			Week:         2,
		},
		{
			Symbol:       "OSO",
			TokenAddress: common.HexToAddress("0xc78fabc2cb5b9cf59e0af3da8e3bc46d47753a4e"),
			Decimals:     18,
			Pool:         "CHAOS / OSO",
			Week:         3,
		},
	}
}

// ViewModel builds a published-looking model with the given user position.
func ViewModel(user *domain.UserPosition) *domain.DashboardViewModel {
	gauges := make([]domain.GaugeState, 0, len(Gauges()))
	for _, g := range Gauges() {
		gauges = append(gauges, domain.PendingGaugeState(g))
	}
	return &domain.DashboardViewModel{
		CycleID:   uuid.New().String(),
		UpdatedAt: time.Now().UTC(),
		Hub: domain.HubState{
			TotalStaked:  Tokens(1_000_000),
			RewardRate:   domain.NewAmount(big.NewInt(1e15)),
			PeriodFinish: time.Now().Add(24 * time.Hour).Unix(),
		},
		HubAPR: 3.1536,
		Gauges: gauges,
		User:   user,
	}
}

// Position is a wallet position in whole tokens.
func Position(staked, earned, allowance, balance int64) *domain.UserPosition {
	return &domain.UserPosition{
		Wallet:    WalletAddress,
		Staked:    Tokens(staked),
		Earned:    Tokens(earned),
		Allowance: Tokens(allowance),
		Balance:   Tokens(balance),
	}
}

// Receipt is a mined receipt with the given status.
func Receipt(tx *types.Transaction, status uint64) *types.Receipt {
	return &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(1234),
	}
}

// Transaction is an unsigned transaction carrying data to the given address.
func Transaction(nonce uint64, to common.Address, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      100_000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within timeout of %v", timeout)
}

// TestContext creates a test context with timeout
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertAmount compares an Amount with a decimal string.
func AssertAmount(t *testing.T, expected string, actual domain.Amount) {
	t.Helper()
	require.Equal(t, expected, actual.String())
}

// MockChainReader is a mock implementation of domain.ChainReader
type MockChainReader struct {
	mock.Mock
}

func (m *MockChainReader) ReadHub(ctx context.Context, hub common.Address) domain.HubState {
	args := m.Called(ctx, hub)
	return args.Get(0).(domain.HubState)
}

func (m *MockChainReader) ReadGauge(ctx context.Context, gauge domain.GaugeConfig, wallet *common.Address) domain.GaugeReading {
	args := m.Called(ctx, gauge, wallet)
	return args.Get(0).(domain.GaugeReading)
}

func (m *MockChainReader) ReadUser(ctx context.Context, hub, token, wallet common.Address) domain.UserPosition {
	args := m.Called(ctx, hub, token, wallet)
	return args.Get(0).(domain.UserPosition)
}

// MockWallet is a mock implementation of domain.Wallet
type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

func (m *MockWallet) Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	args := m.Called(ctx, to, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

func (m *MockWallet) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

// MockSnapshotRecorder is a mock implementation of domain.SnapshotRecorder
type MockSnapshotRecorder struct {
	mock.Mock
}

func (m *MockSnapshotRecorder) RecordSnapshot(ctx context.Context, vm *domain.DashboardViewModel) error {
	args := m.Called(ctx, vm)
	return args.Error(0)
}

func (m *MockSnapshotRecorder) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockDashboardService is a mock implementation of domain.DashboardService
type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDashboardService) Stop() {
	m.Called()
}

func (m *MockDashboardService) Refresh(ctx context.Context) (*domain.DashboardViewModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DashboardViewModel), args.Error(1)
}

func (m *MockDashboardService) ViewModel() *domain.DashboardViewModel {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.DashboardViewModel)
}

func (m *MockDashboardService) Subscribe() (<-chan *domain.DashboardViewModel, func()) {
	args := m.Called()
	return args.Get(0).(<-chan *domain.DashboardViewModel), args.Get(1).(func())
}

// MockActionService is a mock implementation of domain.ActionService
type MockActionService struct {
	mock.Mock
}

func (m *MockActionService) Approve(ctx context.Context) (domain.ActionOutcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.ActionOutcome), args.Error(1)
}

func (m *MockActionService) Stake(ctx context.Context, amount string) (domain.ActionOutcome, error) {
	args := m.Called(ctx, amount)
	return args.Get(0).(domain.ActionOutcome), args.Error(1)
}

func (m *MockActionService) Withdraw(ctx context.Context, amount string) (domain.ActionOutcome, error) {
	args := m.Called(ctx, amount)
	return args.Get(0).(domain.ActionOutcome), args.Error(1)
}

func (m *MockActionService) Claim(ctx context.Context) (domain.ActionOutcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.ActionOutcome), args.Error(1)
}

func (m *MockActionService) Exit(ctx context.Context) (domain.ActionOutcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.ActionOutcome), args.Error(1)
}

func (m *MockActionService) InFlight() domain.ActionKind {
	args := m.Called()
	return args.Get(0).(domain.ActionKind)
}

func (m *MockActionService) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}
