package yield

import (
	"math/big"
	"testing"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

const now = int64(1_750_000_000)

func tokens(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func TestHubAPR(t *testing.T) {
	oneYearOfRate := tokens(SecondsPerYear, 18)

	tests := []struct {
		name        string
		rewardRate  *big.Int
		totalStaked *big.Int
		periodEnd   int64
		want        float64
	}{
		{"rate equals stake per year", tokens(1, 18), oneYearOfRate, now + 100, 100},
		{"double stake halves apr", tokens(1, 18), new(big.Int).Mul(oneYearOfRate, big.NewInt(2)), now + 100, 50},
		{"zero total staked", tokens(1, 18), big.NewInt(0), now + 100, 0},
		{"nil total staked", tokens(1, 18), nil, now + 100, 0},
		{"period ended", tokens(1, 18), oneYearOfRate, now - 1, 0},
		{"period ends exactly now", tokens(1, 18), oneYearOfRate, now, 0},
		{"zero rate", big.NewInt(0), oneYearOfRate, now + 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HubAPR(tt.rewardRate, tt.totalStaked, tt.periodEnd, now), 1e-9)
		})
	}
}

func TestHubAPR_KeepsFourDecimals(t *testing.T) {
	// 1 * 31536000 * 100 / 3 = 1051200000 exactly, 1/7 exercises truncation
	assert.InDelta(t, 1051200000.0, HubAPR(big.NewInt(1), big.NewInt(3), now+1, now), 1e-6)
	assert.InDelta(t, 450514285.7142, HubAPR(big.NewInt(1), big.NewInt(7), now+1, now), 1e-6)
}

func TestGaugeInAssetAPR(t *testing.T) {
	staked := tokens(SecondsPerYear, 18)

	tests := []struct {
		name           string
		rewardRate     *big.Int
		rewardDecimals int32
		totalStaked    *big.Int
		periodEnd      int64
		want           float64
	}{
		{"usdc stream one per second", tokens(1, 6), 6, staked, now + 10, 1},
		{"eighteen decimal stream", tokens(2, 18), 18, staked, now + 10, 2},
		{"half the stake doubles ratio", tokens(1, 6), 6, tokens(SecondsPerYear/2, 18), now + 10, 2},
		{"zero staked", tokens(1, 6), 6, big.NewInt(0), now + 10, 0},
		{"ended", tokens(1, 6), 6, staked, now - 10, 0},
		{"never funded", tokens(1, 6), 6, staked, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GaugeInAssetAPR(tt.rewardRate, tt.rewardDecimals, tt.totalStaked, 18, tt.periodEnd, now)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRewardsPerDay(t *testing.T) {
	assert.InDelta(t, 86400.0, RewardsPerDay(tokens(1, 6), 6), 1e-9)
	assert.InDelta(t, 0.0, RewardsPerDay(nil, 18), 1e-9)
	assert.InDelta(t, 0.0, RewardsPerDay(big.NewInt(-1), 18), 1e-9)
}

func TestClassifyGauge(t *testing.T) {
	deployed := common.HexToAddress("0x37547710faE12B4be7458b5E87C3106a85CfD72F")

	tests := []struct {
		name      string
		address   common.Address
		periodEnd int64
		want      domain.GaugeStatus
	}{
		{"live", deployed, now + 1, domain.GaugeLive},
		{"ended", deployed, now - 1, domain.GaugeEnded},
		{"ends exactly now", deployed, now, domain.GaugeEnded},
		{"never funded", deployed, 0, domain.GaugePending},
		{"not deployed", domain.ZeroAddress, 0, domain.GaugePending},
		{"not deployed overrides period", domain.ZeroAddress, now + 1000, domain.GaugePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyGauge(tt.address, tt.periodEnd, now))
		})
	}
}

func TestClassifyGauge_PastPeriods(t *testing.T) {
	deployed := common.HexToAddress("0x37547710faE12B4be7458b5E87C3106a85CfD72F")
	for _, periodEnd := range []int64{0, 1, now / 2, now - 1, now} {
		status := ClassifyGauge(deployed, periodEnd, now)
		if periodEnd > 0 {
			assert.Equal(t, domain.GaugeEnded, status, "periodEnd=%d", periodEnd)
		} else {
			assert.Equal(t, domain.GaugePending, status)
		}
	}
}
