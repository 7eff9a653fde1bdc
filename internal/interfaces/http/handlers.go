package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chaostheory/staking-service/internal/application"
	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

const probeTimeout = 5 * time.Second

// ChainProbe checks that the RPC endpoint is reachable and on the expected chain.
type ChainProbe interface {
	Check(ctx context.Context, expectedChainID int64) error
}

type Handler struct {
	dashboard       domain.DashboardService
	actions         domain.ActionService
	probe           ChainProbe
	chainID         int64
	stakingDecimals int32
	logger          *logger.Logger
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func NewHandler(
	dashboard domain.DashboardService,
	actions domain.ActionService,
	probe ChainProbe,
	chainID int64,
	stakingDecimals int32,
	logger *logger.Logger,
) *Handler {
	return &Handler{
		dashboard:       dashboard,
		actions:         actions,
		probe:           probe,
		chainID:         chainID,
		stakingDecimals: stakingDecimals,
		logger:          logger,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"wallet_connected": h.actions.Connected(),
		"in_flight":        string(h.actions.InFlight()),
	})
}

// GetReadiness reports ready once a view model exists and the RPC endpoint answers on the right chain.
func (h *Handler) GetReadiness(c *gin.Context) {
	vm := h.dashboard.ViewModel()
	if vm == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "waiting for the first dashboard refresh",
		})
		return
	}

	if h.probe != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		if err := h.probe.Check(ctx, h.chainID); err != nil {
			h.logger.Errorw("Readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"cycle_id":   vm.CycleID,
		"updated_at": vm.UpdatedAt,
	})
}

func (h *Handler) GetDashboard(c *gin.Context) {
	vm := h.dashboard.ViewModel()
	if vm == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, vm)
}

func (h *Handler) GetActions(c *gin.Context) {
	affordances := application.ComputeAffordances(
		h.dashboard.ViewModel(),
		c.Query("stake"),
		c.Query("withdraw"),
		h.actions.Connected(),
		h.actions.InFlight(),
		h.stakingDecimals,
	)
	c.JSON(http.StatusOK, affordances)
}

func (h *Handler) PostApprove(c *gin.Context) {
	h.respond(c, domain.ActionApprove, func(ctx context.Context) (domain.ActionOutcome, error) {
		return h.actions.Approve(ctx)
	})
}

func (h *Handler) PostStake(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be JSON like {\"amount\": \"1.5\"}"})
		return
	}
	h.respond(c, domain.ActionStake, func(ctx context.Context) (domain.ActionOutcome, error) {
		return h.actions.Stake(ctx, req.Amount)
	})
}

func (h *Handler) PostWithdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be JSON like {\"amount\": \"1.5\"}"})
		return
	}
	h.respond(c, domain.ActionWithdraw, func(ctx context.Context) (domain.ActionOutcome, error) {
		return h.actions.Withdraw(ctx, req.Amount)
	})
}

func (h *Handler) PostClaim(c *gin.Context) {
	h.respond(c, domain.ActionClaim, func(ctx context.Context) (domain.ActionOutcome, error) {
		return h.actions.Claim(ctx)
	})
}

func (h *Handler) PostExit(c *gin.Context) {
	h.respond(c, domain.ActionExit, func(ctx context.Context) (domain.ActionOutcome, error) {
		return h.actions.Exit(ctx)
	})
}

func (h *Handler) respond(c *gin.Context, kind domain.ActionKind, run func(ctx context.Context) (domain.ActionOutcome, error)) {
	outcome, err := run(c.Request.Context())
	if err != nil {
		if errors.Is(err, domain.ErrActionInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error":     err.Error(),
				"in_flight": string(h.actions.InFlight()),
			})
			return
		}

		h.logger.Errorw("Action request failed", "action", kind, "error", err)
		body := gin.H{"error": err.Error()}
		if outcome.TxHash != "" {
			body["tx_hash"] = outcome.TxHash
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}

	c.JSON(http.StatusOK, outcome)
}
