package http

import (
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/config"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	actionRate  = time.Second
	actionBurst = 5
)

func NewRouter(
	dashboard domain.DashboardService,
	actions domain.ActionService,
	probe ChainProbe,
	cfg *config.Config,
	logger *logger.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(),
	)

	handler := NewHandler(dashboard, actions, probe, cfg.RPC.ChainID, cfg.Staking.StakingDecimals, logger)

	router.GET("/health", handler.GetHealth)
	router.GET("/ready", handler.GetReadiness)

	api := router.Group("/stake")
	{
		api.GET("/dashboard", handler.GetDashboard)
		api.GET("/actions", handler.GetActions)
		api.GET("/stream", handler.GetStream)

		writes := api.Group("",
			RateLimitMiddleware(rate.NewLimiter(rate.Every(actionRate), actionBurst)),
			TimeoutMiddleware(cfg.Server.RequestTimeout),
		)
		writes.POST("/approve", handler.PostApprove)
		writes.POST("/stake", handler.PostStake)
		writes.POST("/withdraw", handler.PostWithdraw)
		writes.POST("/claim", handler.PostClaim)
		writes.POST("/exit", handler.PostExit)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
