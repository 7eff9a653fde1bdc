package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/internal/yield"
	"github.com/chaostheory/staking-service/pkg/config"
	"github.com/chaostheory/staking-service/pkg/format"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/chaostheory/staking-service/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrCycleDiscarded is returned by Refresh when the aggregator was stopped before the cycle
// could publish.
var ErrCycleDiscarded = errors.New("refresh cycle discarded after stop")

const subscriberBuffer = 4

// Aggregator owns the dashboard view model. Every cycle re-reads all chain state and swaps
// the model in with a single pointer store.
type Aggregator struct {
	reader   domain.ChainReader
	recorder domain.SnapshotRecorder
	config   *config.Staking
	wallet   *common.Address
	logger   *logger.Logger
	now      func() time.Time

	model atomic.Pointer[domain.DashboardViewModel]
	epoch atomic.Uint64

	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	cancelCycles  context.CancelFunc
	started       bool
	stopped       bool
	mu            sync.Mutex // guards the fields above and every publish

	subMu       sync.Mutex
	subscribers map[uint64]chan *domain.DashboardViewModel
	nextSubID   uint64
}

// NewAggregator builds an aggregator for the configured hub and gauges. wallet may be nil,
// in which case no user position is read.
func NewAggregator(
	reader domain.ChainReader,
	recorder domain.SnapshotRecorder,
	config *config.Staking,
	wallet *common.Address,
	logger *logger.Logger,
) *Aggregator {
	return &Aggregator{
		reader:      reader,
		recorder:    recorder,
		config:      config,
		wallet:      wallet,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[uint64]chan *domain.DashboardViewModel),
	}
}

func (a *Aggregator) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return domain.ErrAlreadyStarted
	}
	a.started = true
	a.stopped = false

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelCycles = cancel
	a.stopRefresh = make(chan struct{})
	a.refreshTicker = time.NewTicker(a.config.RefreshInterval)

	go a.refreshLoop(ctx, a.refreshTicker, a.stopRefresh)

	a.logger.Infow("Dashboard refresh started", "interval", a.config.RefreshInterval, "gauges", len(a.config.Gauges))
	return nil
}

// Stop halts the ticker, cancels in-flight cycles and closes every subscriber channel.
// Results that arrive afterwards are dropped until the next Start.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return
	}

	a.epoch.Add(1)
	a.stopped = true
	close(a.stopRefresh)
	a.refreshTicker.Stop()
	a.cancelCycles()
	a.started = false
	a.closeSubscribers()
	a.logger.Info("Dashboard refresh stopped")
}

func (a *Aggregator) refreshLoop(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	a.refreshOnce(ctx)

	for {
		select {
		case <-ticker.C:
			// cycles may overlap when one outlives the interval; the last one to finish wins
			go a.refreshOnce(ctx)
		case <-stop:
			return
		}
	}
}

func (a *Aggregator) refreshOnce(ctx context.Context) {
	if _, err := a.Refresh(ctx); err != nil && !errors.Is(err, ErrCycleDiscarded) {
		a.logger.Warnw("Dashboard refresh did not publish", "error", err)
	}
}

// Refresh runs one full aggregation cycle and publishes the result.
func (a *Aggregator) Refresh(ctx context.Context) (*domain.DashboardViewModel, error) {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return nil, ErrCycleDiscarded
	}

	epoch := a.epoch.Load()
	start := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, a.config.CycleTimeout)
	defer cancel()

	vm := a.collect(cycleCtx)
	duration := time.Since(start).Seconds()

	a.mu.Lock()
	discarded := a.stopped || a.epoch.Load() != epoch
	if err := ctx.Err(); err != nil {
		a.mu.Unlock()
		metrics.RecordCycle(duration, "canceled")
		if discarded {
			return nil, ErrCycleDiscarded
		}
		return nil, fmt.Errorf("refresh canceled: %w", err)
	}
	if discarded {
		a.mu.Unlock()
		metrics.RecordCycle(duration, "discarded")
		return nil, ErrCycleDiscarded
	}
	a.publish(vm)
	a.mu.Unlock()

	metrics.RecordCycle(duration, "success")

	a.logger.Debugw("Dashboard refreshed",
		"cycle_id", vm.CycleID,
		"total_staked", vm.Hub.TotalStaked.String(),
		"hub_apr", vm.HubAPR,
		"live_gauges", vm.LiveGauges(),
		"duration", duration,
	)

	a.record(ctx, vm)

	return vm, nil
}

func (a *Aggregator) record(ctx context.Context, vm *domain.DashboardViewModel) {
	if a.recorder == nil {
		return
	}
	if err := a.recorder.RecordSnapshot(ctx, vm); err != nil {
		a.logger.Errorw("Failed to record snapshot", "cycle_id", vm.CycleID, "error", err)
		metrics.RecordSnapshot(false)
		return
	}
	metrics.RecordSnapshot(true)
}

// ViewModel returns the latest published model, or nil before the first cycle completes.
func (a *Aggregator) ViewModel() *domain.DashboardViewModel {
	return a.model.Load()
}

// Subscribe returns a channel receiving every published model and a func that unsubscribes.
// Updates are dropped for a subscriber whose buffer is full. After Stop the channel
// comes back already closed.
func (a *Aggregator) Subscribe() (<-chan *domain.DashboardViewModel, func()) {
	ch := make(chan *domain.DashboardViewModel, subscriberBuffer)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		close(ch)
		return ch, func() {}
	}

	a.subMu.Lock()
	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = ch
	a.subMu.Unlock()

	unsubscribe := func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		// Stop may have closed it already
		if _, ok := a.subscribers[id]; ok {
			delete(a.subscribers, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

func (a *Aggregator) closeSubscribers() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for id, ch := range a.subscribers {
		delete(a.subscribers, id)
		close(ch)
	}
}

// publish must be called with a.mu held.
func (a *Aggregator) publish(vm *domain.DashboardViewModel) {
	a.model.Store(vm)

	metrics.UpdateDashboard(toFloat(vm.Hub.TotalStaked, a.config.StakingDecimals), vm.HubAPR, vm.LiveGauges())
	for _, g := range vm.Gauges {
		metrics.UpdateGaugeAPR(g.Symbol, g.InAssetAPR)
	}

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for id, ch := range a.subscribers {
		select {
		case ch <- vm:
		default:
			a.logger.Debugw("Dropping update for slow subscriber", "subscriber", id, "cycle_id", vm.CycleID)
		}
	}
}

func (a *Aggregator) collect(ctx context.Context) *domain.DashboardViewModel {
	var (
		hub      domain.HubState
		user     *domain.UserPosition
		readings = make([]*domain.GaugeReading, len(a.config.Gauges))
	)

	var g errgroup.Group
	g.Go(func() error {
		hub = a.reader.ReadHub(ctx, a.config.HubAddress)
		return nil
	})
	if a.wallet != nil {
		wallet := *a.wallet
		g.Go(func() error {
			position := a.reader.ReadUser(ctx, a.config.HubAddress, a.config.TokenAddress, wallet)
			user = &position
			return nil
		})
	}
	for i, gauge := range a.config.Gauges {
		if !gauge.Deployed() {
			continue
		}
		g.Go(func() error {
			reading := a.reader.ReadGauge(ctx, gauge, a.wallet)
			readings[i] = &reading
			return nil
		})
	}
	_ = g.Wait()

	now := a.now()
	unix := now.Unix()

	vm := &domain.DashboardViewModel{
		CycleID:   uuid.New().String(),
		UpdatedAt: now.UTC(),
		Hub:       hub,
		HubAPR:    yield.HubAPR(hub.RewardRate.Big(), hub.TotalStaked.Big(), hub.PeriodFinish, unix),
		Gauges:    make([]domain.GaugeState, 0, len(a.config.Gauges)),
		User:      user,
	}

	for i, gauge := range a.config.Gauges {
		reading := readings[i]
		if reading == nil {
			vm.Gauges = append(vm.Gauges, domain.PendingGaugeState(gauge))
			continue
		}

		state := domain.GaugeState{
			GaugeConfig:     gauge,
			RewardRate:      reading.RewardRate,
			PeriodFinish:    reading.PeriodFinish,
			RewardsDuration: reading.RewardsDuration,
			Earned:          reading.Earned,
			Status:          yield.ClassifyGauge(gauge.GaugeAddress, reading.PeriodFinish, unix),
			InAssetAPR: yield.GaugeInAssetAPR(
				reading.RewardRate.Big(), gauge.Decimals,
				hub.TotalStaked.Big(), a.config.StakingDecimals,
				reading.PeriodFinish, unix,
			),
		}
		if state.Status == domain.GaugeLive {
			state.RewardsPerDay = yield.RewardsPerDay(reading.RewardRate.Big(), gauge.Decimals)
		}
		vm.Gauges = append(vm.Gauges, state)
	}

	vm.Display = a.display(vm, now)
	return vm
}

func (a *Aggregator) display(vm *domain.DashboardViewModel, now time.Time) domain.Display {
	decimals := a.config.StakingDecimals

	d := domain.Display{
		TotalStaked:  format.FormatAmount(vm.Hub.TotalStaked.Big(), decimals),
		HubAPR:       fmt.Sprintf("%.1f%%", vm.HubAPR),
		ActiveGauges: fmt.Sprintf("%d / %d", vm.LiveGauges(), len(vm.Gauges)),
		Gauges:       make([]domain.GaugeDisplay, 0, len(vm.Gauges)),
	}

	for _, g := range vm.Gauges {
		gd := domain.GaugeDisplay{Symbol: g.Symbol, Status: statusLabel(g.Status)}
		if g.Status == domain.GaugeLive {
			gd.APR = fmt.Sprintf("%.2f", g.InAssetAPR)
			gd.Remaining = format.FormatCountdownAt(g.PeriodFinish, now)
			if vm.User != nil && !g.Earned.IsZero() {
				gd.Earned = format.FormatAmount(g.Earned.Big(), g.Decimals)
			}
		}
		d.Gauges = append(d.Gauges, gd)
	}

	if vm.User != nil {
		d.Staked = format.FormatAmount(vm.User.Staked.Big(), decimals)
		d.Earned = format.FormatAmount(vm.User.Earned.Big(), decimals)
		d.Balance = format.FormatAmount(vm.User.Balance.Big(), decimals)
		d.Wallet = format.TruncateAddress(vm.User.Wallet.Hex())
	}

	return d
}

func statusLabel(status domain.GaugeStatus) string {
	switch status {
	case domain.GaugeLive:
		return "Live"
	case domain.GaugeEnded:
		return "Ended"
	default:
		return "Pending"
	}
}

func toFloat(amount domain.Amount, decimals int32) float64 {
	f, _ := decimal.NewFromBigInt(amount.Big(), -decimals).Float64()
	return f
}
