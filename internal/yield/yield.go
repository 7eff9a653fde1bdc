// Package yield derives annualised figures from raw staking contract values.
// Every function takes "now" explicitly and has no side effects.
package yield

import (
	"math/big"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	SecondsPerYear = 365 * 86400
	SecondsPerDay  = 86400

	// hub APR keeps four fractional digits of integer precision before converting to float
	aprPrecision = 10_000
)

var (
	secondsPerYear = big.NewInt(SecondsPerYear)
	hundred        = big.NewInt(100)
	precision      = big.NewInt(aprPrecision)
)

func active(totalStaked *big.Int, periodEnd, now int64) bool {
	return totalStaked != nil && totalStaked.Sign() > 0 && periodEnd > now
}

// HubAPR returns the hub's annual reward rate in percent.
func HubAPR(rewardRate, totalStaked *big.Int, periodEnd, now int64) float64 {
	if rewardRate == nil || !active(totalStaked, periodEnd, now) {
		return 0
	}
	scaled := new(big.Int).Mul(rewardRate, secondsPerYear)
	scaled.Mul(scaled, hundred)
	scaled.Mul(scaled, precision)
	scaled.Quo(scaled, totalStaked)

	apr, _ := new(big.Rat).SetFrac(scaled, precision).Float64()
	return apr
}

// GaugeInAssetAPR returns reward tokens emitted per staked token per year. The two sides are
// normalised by their own decimals, so the result is a ratio rather than a percentage.
func GaugeInAssetAPR(rewardRate *big.Int, rewardDecimals int32, totalStaked *big.Int, stakingDecimals int32, periodEnd, now int64) float64 {
	if rewardRate == nil || !active(totalStaked, periodEnd, now) {
		return 0
	}
	annual := decimal.NewFromBigInt(new(big.Int).Mul(rewardRate, secondsPerYear), -rewardDecimals)
	staked := decimal.NewFromBigInt(totalStaked, -stakingDecimals)

	ratio, _ := annual.DivRound(staked, 18).Float64()
	return ratio
}

// RewardsPerDay is the daily emission of a stream, in whole reward tokens.
func RewardsPerDay(rewardRate *big.Int, decimals int32) float64 {
	if rewardRate == nil || rewardRate.Sign() <= 0 {
		return 0
	}
	daily := new(big.Int).Mul(rewardRate, big.NewInt(SecondsPerDay))
	f, _ := decimal.NewFromBigInt(daily, -decimals).Float64()
	return f
}

// ClassifyGauge reconciles a gauge's lifecycle from its address and period end.
func ClassifyGauge(gaugeAddress common.Address, periodEnd, now int64) domain.GaugeStatus {
	switch {
	case gaugeAddress == domain.ZeroAddress, periodEnd == 0:
		return domain.GaugePending
	case periodEnd > now:
		return domain.GaugeLive
	default:
		return domain.GaugeEnded
	}
}
