package application

import (
	"strings"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/format"
)

// ComputeAffordances decides which actions a page may enable for the given inputs.
// Approve and stake are separate steps; nothing here ever chains them.
func ComputeAffordances(
	vm *domain.DashboardViewModel,
	stakeInput, withdrawInput string,
	walletConnected bool,
	inFlight domain.ActionKind,
	stakingDecimals int32,
) domain.Affordances {
	var position domain.UserPosition
	if vm != nil && vm.User != nil {
		position = *vm.User
	}

	idle := inFlight == ""
	stakeWei := format.ParseToWei(stakeInput, stakingDecimals)
	withdrawWei := format.ParseToWei(withdrawInput, stakingDecimals)
	allowance := position.Allowance.Big()
	staked := position.Staked.Big()
	earned := position.Earned.Big()

	needsApproval := vm != nil && allowance.Cmp(stakeWei) < 0

	return domain.Affordances{
		WalletConnected: walletConnected,
		InFlight:        string(inFlight),
		NeedsApproval:   needsApproval,
		CanApprove:      walletConnected && idle && strings.TrimSpace(stakeInput) != "",
		CanStake:        walletConnected && idle && !needsApproval && stakeWei.Sign() > 0,
		CanWithdraw:     walletConnected && idle && withdrawWei.Sign() > 0 && staked.Sign() > 0,
		CanClaim:        walletConnected && idle,
		CanExit:         walletConnected && idle && (staked.Sign() > 0 || earned.Sign() > 0),
		MaxStake:        format.FormatUnits(position.Balance.Big(), stakingDecimals),
		MaxWithdraw:     format.FormatUnits(staked, stakingDecimals),
	}
}
