package application

import (
	"testing"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestComputeAffordances(t *testing.T) {
	tests := []struct {
		name      string
		vm        *domain.DashboardViewModel
		stake     string
		withdraw  string
		connected bool
		inFlight  domain.ActionKind
		want      domain.Affordances
	}{
		{
			name: "loading and disconnected",
			vm:   nil,
			want: domain.Affordances{MaxStake: "0", MaxWithdraw: "0"},
		},
		{
			name:      "allowance below stake amount requires approval",
			vm:        testutil.ViewModel(testutil.Position(0, 0, 50, 250)),
			stake:     "100",
			connected: true,
			want: domain.Affordances{
				WalletConnected: true,
				NeedsApproval:   true,
				CanApprove:      true,
				CanClaim:        true,
				MaxStake:        "250",
				MaxWithdraw:     "0",
			},
		},
		{
			name:      "sufficient allowance enables stake",
			vm:        testutil.ViewModel(testutil.Position(0, 0, 100, 250)),
			stake:     "100",
			connected: true,
			want: domain.Affordances{
				WalletConnected: true,
				CanApprove:      true,
				CanStake:        true,
				CanClaim:        true,
				MaxStake:        "250",
				MaxWithdraw:     "0",
			},
		},
		{
			name:      "empty stake input",
			vm:        testutil.ViewModel(testutil.Position(0, 0, 0, 250)),
			stake:     "  ",
			connected: true,
			want: domain.Affordances{
				WalletConnected: true,
				CanClaim:        true,
				MaxStake:        "250",
				MaxWithdraw:     "0",
			},
		},
		{
			name:      "zero stake input can approve but not stake",
			vm:        testutil.ViewModel(testutil.Position(0, 0, 0, 250)),
			stake:     "0",
			connected: true,
			want: domain.Affordances{
				WalletConnected: true,
				CanApprove:      true,
				CanClaim:        true,
				MaxStake:        "250",
				MaxWithdraw:     "0",
			},
		},
		{
			name:      "withdraw needs a stake",
			vm:        testutil.ViewModel(testutil.Position(1500, 0, 0, 0)),
			withdraw:  "10",
			connected: true,
			want: domain.Affordances{
				WalletConnected: true,
				CanWithdraw:     true,
				CanClaim:        true,
				CanExit:         true,
				MaxStake:        "0",
				MaxWithdraw:     "1500",
			},
		},
		{
			name:      "withdraw without stake",
			vm:        testutil.ViewModel(testutil.Position(0, 0, 0, 0)),
			withdraw:  "10",
			connected: true,
			want: domain.Affordances{
				WalletConnected: true,
				CanClaim:        true,
				MaxStake:        "0",
				MaxWithdraw:     "0",
			},
		},
		{
			name:      "action in flight disables everything",
			vm:        testutil.ViewModel(testutil.Position(1500, 3, 1000, 250)),
			stake:     "100",
			withdraw:  "10",
			connected: true,
			inFlight:  domain.ActionClaim,
			want: domain.Affordances{
				WalletConnected: true,
				InFlight:        "claim",
				MaxStake:        "250",
				MaxWithdraw:     "1500",
			},
		},
		{
			name:     "not connected",
			vm:       testutil.ViewModel(nil),
			stake:    "100",
			withdraw: "10",
			want: domain.Affordances{
				NeedsApproval: true,
				MaxStake:      "0",
				MaxWithdraw:   "0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAffordances(tt.vm, tt.stake, tt.withdraw, tt.connected, tt.inFlight, 18)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeAffordances_Exit(t *testing.T) {
	tests := []struct {
		name   string
		staked int64
		earned int64
		want   bool
	}{
		{"nothing staked or earned", 0, 0, false},
		{"staked only", 10, 0, true},
		{"earned only", 0, 1, true},
		{"both", 10, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := testutil.ViewModel(testutil.Position(tt.staked, tt.earned, 0, 0))
			got := ComputeAffordances(vm, "", "", true, "", 18)
			assert.Equal(t, tt.want, got.CanExit)
		})
	}
}
