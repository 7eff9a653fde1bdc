package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/chaostheory/staking-service/pkg/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Reader issues view calls against the hub, gauge and token contracts. A failed call never
// fails its siblings: the field falls back to the last value read for the same call, or zero.
type Reader struct {
	caller      bind.ContractCaller
	logger      *logger.Logger
	rateLimiter *rate.Limiter
	timeout     time.Duration

	mu        sync.Mutex
	lastKnown map[string]*big.Int
}

func NewReader(caller bind.ContractCaller, requestsPerSecond float64, burst int, timeout time.Duration, log *logger.Logger) *Reader {
	return &Reader{
		caller:      caller,
		logger:      log,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		timeout:     timeout,
		lastKnown:   make(map[string]*big.Int),
	}
}

func (r *Reader) ReadHub(ctx context.Context, hub common.Address) domain.HubState {
	var totalSupply, rewardRate, periodFinish, rewardsDuration *big.Int

	var g errgroup.Group
	g.Go(func() error {
		totalSupply = r.readUint(ctx, hub, StakingHubABI, "totalSupply")
		return nil
	})
	g.Go(func() error {
		rewardRate = r.readUint(ctx, hub, StakingHubABI, "rewardRate")
		return nil
	})
	g.Go(func() error {
		periodFinish = r.readUint(ctx, hub, StakingHubABI, "periodFinish")
		return nil
	})
	g.Go(func() error {
		rewardsDuration = r.readUint(ctx, hub, StakingHubABI, "rewardsDuration")
		return nil
	})
	_ = g.Wait()

	return domain.HubState{
		TotalStaked:     domain.NewAmount(totalSupply),
		RewardRate:      domain.NewAmount(rewardRate),
		PeriodFinish:    toUnix(periodFinish),
		RewardsDuration: toUnix(rewardsDuration),
	}
}

// ReadGauge reads a deployed gauge. earned is only read when a wallet is given.
func (r *Reader) ReadGauge(ctx context.Context, gauge domain.GaugeConfig, wallet *common.Address) domain.GaugeReading {
	addr := gauge.GaugeAddress
	earned := new(big.Int)
	var rewardRate, periodFinish, rewardsDuration *big.Int

	var g errgroup.Group
	g.Go(func() error {
		rewardRate = r.readUint(ctx, addr, GaugeABI, "rewardRate")
		return nil
	})
	g.Go(func() error {
		periodFinish = r.readUint(ctx, addr, GaugeABI, "periodFinish")
		return nil
	})
	g.Go(func() error {
		rewardsDuration = r.readUint(ctx, addr, GaugeABI, "rewardsDuration")
		return nil
	})
	if wallet != nil {
		account := *wallet
		g.Go(func() error {
			earned = r.readUint(ctx, addr, GaugeABI, "earned", account)
			return nil
		})
	}
	_ = g.Wait()

	return domain.GaugeReading{
		RewardRate:      domain.NewAmount(rewardRate),
		PeriodFinish:    toUnix(periodFinish),
		RewardsDuration: toUnix(rewardsDuration),
		Earned:          domain.NewAmount(earned),
	}
}

func (r *Reader) ReadUser(ctx context.Context, hub, token, wallet common.Address) domain.UserPosition {
	var staked, earned, allowance, balance *big.Int

	var g errgroup.Group
	g.Go(func() error {
		staked = r.readUint(ctx, hub, StakingHubABI, "balanceOf", wallet)
		return nil
	})
	g.Go(func() error {
		earned = r.readUint(ctx, hub, StakingHubABI, "earned", wallet)
		return nil
	})
	g.Go(func() error {
		allowance = r.readUint(ctx, token, ERC20ABI, "allowance", wallet, hub)
		return nil
	})
	g.Go(func() error {
		balance = r.readUint(ctx, token, ERC20ABI, "balanceOf", wallet)
		return nil
	})
	_ = g.Wait()

	return domain.UserPosition{
		Wallet:    wallet,
		Staked:    domain.NewAmount(staked),
		Earned:    domain.NewAmount(earned),
		Allowance: domain.NewAmount(allowance),
		Balance:   domain.NewAmount(balance),
	}
}

func (r *Reader) readUint(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) *big.Int {
	key := callKey(contract, method, args)

	start := time.Now()
	value, err := r.CallUint(ctx, contract, parsed, method, args...)
	metrics.RecordChainRead(method, time.Since(start).Seconds(), err == nil)

	if err != nil {
		fallback := r.fallback(key)
		r.logger.Warnw("Chain read failed, using fallback value",
			"contract", contract.Hex(),
			"method", method,
			"fallback", fallback.String(),
			"error", err,
		)
		return fallback
	}

	r.mu.Lock()
	r.lastKnown[key] = new(big.Int).Set(value)
	r.mu.Unlock()

	return value
}

// CallUint performs one view call whose first return value is a uint256.
func (r *Reader) CallUint(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	if err := r.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debugw("Calling contract", "contract", contract.Hex(), "method", method)

	output, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty result for %s", method)
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T for %s", values[0], method)
	}

	return value, nil
}

func (r *Reader) fallback(key string) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.lastKnown[key]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func callKey(contract common.Address, method string, args []interface{}) string {
	var b strings.Builder
	b.WriteString(contract.Hex())
	b.WriteString(".")
	b.WriteString(method)
	for _, arg := range args {
		b.WriteString(":")
		if addr, ok := arg.(common.Address); ok {
			b.WriteString(addr.Hex())
		} else {
			fmt.Fprint(&b, arg)
		}
	}
	return b.String()
}

func toUnix(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
