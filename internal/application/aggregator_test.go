package application

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/internal/testutil"
	"github.com/chaostheory/staking-service/pkg/config"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func stakingConfig() *config.Staking {
	return &config.Staking{
		HubAddress:      testutil.HubAddress,
		TokenAddress:    testutil.TokenAddress,
		StakingDecimals: 18,
		RefreshInterval: time.Hour,
		CycleTimeout:    5 * time.Second,
		Gauges:          testutil.Gauges(),
	}
}

func newTestAggregator(reader domain.ChainReader, recorder domain.SnapshotRecorder, wallet *common.Address) *Aggregator {
	agg := NewAggregator(reader, recorder, stakingConfig(), wallet, logger.NewNop())
	agg.now = func() time.Time { return fixedNow }
	return agg
}

func liveHub() domain.HubState {
	return domain.HubState{
		TotalStaked:     testutil.Tokens(1_000_000),
		RewardRate:      domain.NewAmount(big.NewInt(1e15)),
		PeriodFinish:    fixedNow.Unix() + 86400,
		RewardsDuration: 604800,
	}
}

func expectGauges(reader *testutil.MockChainReader, wallet interface{}) {
	gauges := testutil.Gauges()
	reader.On("ReadGauge", mock.Anything, gauges[0], wallet).Return(domain.GaugeReading{
		RewardRate:      domain.NewAmount(big.NewInt(1e15)),
		PeriodFinish:    fixedNow.Unix() + 90000,
		RewardsDuration: 604800,
		Earned:          testutil.Tokens(2),
	})
	reader.On("ReadGauge", mock.Anything, gauges[1], wallet).Return(domain.GaugeReading{
		RewardRate:   domain.NewAmount(big.NewInt(5000)),
		PeriodFinish: fixedNow.Unix() - 10,
	})
}

func TestAggregator_ViewModelNilBeforeFirstCycle(t *testing.T) {
	agg := newTestAggregator(new(testutil.MockChainReader), nil, nil)
	assert.Nil(t, agg.ViewModel())
}

func TestAggregator_Refresh_WithoutWallet(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)

	vm, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, vm)
	assert.Same(t, vm, agg.ViewModel())

	assert.NotEmpty(t, vm.CycleID)
	assert.Equal(t, fixedNow.UTC(), vm.UpdatedAt)
	assert.InDelta(t, 3.1536, vm.HubAPR, 1e-9)
	assert.Nil(t, vm.User)
	require.Len(t, vm.Gauges, 3)

	arbme := vm.Gauges[0]
	assert.Equal(t, domain.GaugeLive, arbme.Status)
	assert.InDelta(t, 0.031536, arbme.InAssetAPR, 1e-12)
	assert.InDelta(t, 86.4, arbme.RewardsPerDay, 1e-9)
	assert.Equal(t, int64(604800), arbme.RewardsDuration)

	usdc := vm.Gauges[1]
	assert.Equal(t, domain.GaugeEnded, usdc.Status)
	assert.Zero(t, usdc.InAssetAPR)
	assert.Zero(t, usdc.RewardsPerDay)

	oso := vm.Gauges[2]
	assert.Equal(t, domain.GaugePending, oso.Status)
	assert.True(t, oso.RewardRate.IsZero())
	assert.Equal(t, int64(0), oso.PeriodFinish)

	reader.AssertNotCalled(t, "ReadGauge", mock.Anything, testutil.Gauges()[2], mock.Anything)
	reader.AssertNotCalled(t, "ReadUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	reader.AssertExpectations(t)
}

func TestAggregator_Refresh_Display(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	vm, err := newTestAggregator(reader, nil, nil).Refresh(context.Background())
	require.NoError(t, err)

	d := vm.Display
	assert.Equal(t, "1.00M", d.TotalStaked)
	assert.Equal(t, "3.2%", d.HubAPR)
	assert.Equal(t, "1 / 3", d.ActiveGauges)
	assert.Empty(t, d.Wallet)
	assert.Empty(t, d.Staked)

	require.Len(t, d.Gauges, 3)
	assert.Equal(t, domain.GaugeDisplay{Symbol: "ARBME", Status: "Live", APR: "0.03", Remaining: "1d 1h"}, d.Gauges[0],
		"earned is hidden without a wallet")
	assert.Equal(t, domain.GaugeDisplay{Symbol: "USDC", Status: "Ended"}, d.Gauges[1])
	assert.Equal(t, domain.GaugeDisplay{Symbol: "OSO", Status: "Pending"}, d.Gauges[2])
}

func TestAggregator_Refresh_WithWallet(t *testing.T) {
	wallet := testutil.WalletAddress
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	reader.On("ReadUser", mock.Anything, testutil.HubAddress, testutil.TokenAddress, wallet).
		Return(*testutil.Position(1500, 0, 0, 250))
	expectGauges(reader, mock.MatchedBy(func(w *common.Address) bool { return w != nil && *w == wallet }))

	vm, err := newTestAggregator(reader, nil, &wallet).Refresh(context.Background())
	require.NoError(t, err)

	require.NotNil(t, vm.User)
	testutil.AssertAmount(t, "1500000000000000000000", vm.User.Staked)
	testutil.AssertAmount(t, "2000000000000000000", vm.Gauges[0].Earned)

	assert.Equal(t, "1.50K", vm.Display.Staked)
	assert.Equal(t, "0", vm.Display.Earned)
	assert.Equal(t, "250.00", vm.Display.Balance)
	assert.Equal(t, "0x3ce2...549f", strings.ToLower(vm.Display.Wallet))
	assert.Equal(t, "2.00", vm.Display.Gauges[0].Earned)

	reader.AssertExpectations(t)
}

func TestAggregator_Refresh_ZeroSupply(t *testing.T) {
	reader := new(testutil.MockChainReader)
	hub := liveHub()
	hub.TotalStaked = domain.Amount{}
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(hub)
	expectGauges(reader, (*common.Address)(nil))

	vm, err := newTestAggregator(reader, nil, nil).Refresh(context.Background())
	require.NoError(t, err)

	assert.Zero(t, vm.HubAPR)
	for _, g := range vm.Gauges {
		assert.Zero(t, g.InAssetAPR, g.Symbol)
	}
	assert.Equal(t, domain.GaugeLive, vm.Gauges[0].Status, "status depends on period end only")
}

func TestAggregator_Refresh_RecorderErrorIsNotFatal(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	recorder := new(testutil.MockSnapshotRecorder)
	recorder.On("RecordSnapshot", mock.Anything, mock.AnythingOfType("*domain.DashboardViewModel")).
		Return(errors.New("database unavailable"))

	vm, err := newTestAggregator(reader, recorder, nil).Refresh(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, vm)
	recorder.AssertExpectations(t)
}

func TestAggregator_Refresh_CanceledContextDoesNotPublish(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(domain.HubState{})
	reader.On("ReadGauge", mock.Anything, mock.Anything, mock.Anything).Return(domain.GaugeReading{})

	agg := newTestAggregator(reader, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vm, err := agg.Refresh(ctx)
	assert.Nil(t, vm)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, agg.ViewModel())
}

func TestAggregator_LastCompletedCycleWins(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub()).Once()
	second := liveHub()
	second.TotalStaked = testutil.Tokens(2_000_000)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(second).Once()
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)

	first, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	latest, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.CycleID, latest.CycleID)
	assert.Same(t, latest, agg.ViewModel())
	assert.Equal(t, "2.00M", agg.ViewModel().Display.TotalStaked)
}

func TestAggregator_Subscribe(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)
	updates, unsubscribe := agg.Subscribe()

	vm, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	select {
	case got := <-updates:
		assert.Same(t, vm, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published model")
	}

	unsubscribe()
	unsubscribe()

	_, open := <-updates
	assert.False(t, open, "channel is closed after unsubscribe")

	_, err = agg.Refresh(context.Background())
	require.NoError(t, err)
}

func TestAggregator_SlowSubscriberDoesNotBlock(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)
	_, unsubscribe := agg.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			_, _ = agg.Refresh(context.Background())
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh blocked on a subscriber that never reads")
	}
}

func TestAggregator_StartStop(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)

	require.NoError(t, agg.Start())
	assert.ErrorIs(t, agg.Start(), domain.ErrAlreadyStarted)

	testutil.WaitForCondition(t, 2*time.Second, func() bool {
		return agg.ViewModel() != nil
	})

	agg.Stop()
	agg.Stop()

	require.NoError(t, agg.Start(), "a stopped aggregator can be started again")
	agg.Stop()
}

func TestAggregator_TickerDrivesRefresh(t *testing.T) {
	var cycles atomic.Int32
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).
		Run(func(args mock.Arguments) { cycles.Add(1) }).
		Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)
	agg.config.RefreshInterval = 20 * time.Millisecond

	require.NoError(t, agg.Start())
	defer agg.Stop()

	testutil.WaitForCondition(t, 2*time.Second, func() bool {
		return cycles.Load() >= 3
	})
}

func TestAggregator_CycleFinishingAfterStopIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(liveHub()).Once()
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)
	updates, unsubscribe := agg.Subscribe()
	defer unsubscribe()

	require.NoError(t, agg.Start())
	<-entered
	agg.Stop()
	close(release)

	select {
	case vm, ok := <-updates:
		if ok {
			t.Fatalf("cycle %s was published after stop", vm.CycleID)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("subscriber channel was not closed by stop")
	}
	assert.Nil(t, agg.ViewModel())
}

func TestAggregator_RefreshAfterStopIsDiscarded(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)
	require.NoError(t, agg.Start())
	testutil.WaitForCondition(t, 2*time.Second, func() bool {
		return agg.ViewModel() != nil
	})
	before := agg.ViewModel()

	updates, unsubscribe := agg.Subscribe()
	defer unsubscribe()

	agg.Stop()

	vm, err := agg.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrCycleDiscarded)
	assert.Nil(t, vm)
	assert.Same(t, before, agg.ViewModel(), "the last model before stop stays in place")

	for got := range updates {
		t.Fatalf("cycle %s was pushed after stop", got.CycleID)
	}
}

func TestAggregator_StopClosesSubscribers(t *testing.T) {
	reader := new(testutil.MockChainReader)
	reader.On("ReadHub", mock.Anything, testutil.HubAddress).Return(liveHub())
	expectGauges(reader, (*common.Address)(nil))

	agg := newTestAggregator(reader, nil, nil)
	require.NoError(t, agg.Start())

	first, unsubscribeFirst := agg.Subscribe()
	second, _ := agg.Subscribe()

	agg.Stop()
	unsubscribeFirst()

	testutil.WaitForCondition(t, time.Second, func() bool {
		return drained(first) && drained(second)
	})

	late, unsubscribeLate := agg.Subscribe()
	_, open := <-late
	assert.False(t, open, "subscribing to a stopped aggregator yields a closed channel")
	unsubscribeLate()

	require.NoError(t, agg.Start())
	defer agg.Stop()

	fresh, unsubscribeFresh := agg.Subscribe()
	defer unsubscribeFresh()
	_, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	select {
	case vm := <-fresh:
		assert.NotNil(t, vm)
	case <-time.After(time.Second):
		t.Fatal("a restarted aggregator publishes to new subscribers")
	}
}

// drained reports whether ch is closed, discarding any buffered models.
func drained(ch <-chan *domain.DashboardViewModel) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return true
			}
		default:
			return false
		}
	}
}
