package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"creditplane/pkg/config"
	"creditplane/pkg/errutil"
	"creditplane/pkg/health"
	"creditplane/pkg/middleware"
	"creditplane/services/account"
	"creditplane/services/giveaway"
	"creditplane/services/history"
	"creditplane/services/identity"
	"creditplane/services/redemption"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler),
)

const callerKey = "httpapi.caller"

type Handler struct {
	cfg        *config.Config
	health     health.HealthService
	accounts   *account.Service
	redemption *redemption.Service
	giveaway   *giveaway.Service
	history    *history.Service
}

type Params struct {
	fx.In
	Config     *config.Config
	Health     health.HealthService
	Account    *account.Service
	Redemption *redemption.Service
	Giveaway   *giveaway.Service
	History    *history.Service
}

func NewHandler(p Params) http.Handler {
	h := &Handler{
		cfg:        p.Config,
		health:     p.Health,
		accounts:   p.Account,
		redemption: p.Redemption,
		giveaway:   p.Giveaway,
		history:    p.History,
	}
	return h.Router()
}

func (h *Handler) Router() *gin.Engine {
	if h.cfg != nil && h.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error(), resolveCaller())

	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/redemptions", h.redeem)
		v1.POST("/giveaways", h.distribute)
		v1.GET("/giveaways", h.listRuns)
		v1.GET("/giveaways/:id", h.getRun)
		v1.GET("/accounts/:id/balance", h.balance)
		v1.GET("/accounts/:id/history", h.listHistory)
		v1.POST("/accounts/:id/spend", h.spend)
		v1.POST("/codes", h.generateCodes)
		v1.GET("/codes", h.listCodes)
	}

	return r
}

// resolveCaller lifts the identity headers set by the auth proxy into a
// Caller. The proxy owns authentication; these headers are trusted input.
func resolveCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(callerKey, identity.Caller{
			UserID:      strings.TrimSpace(c.GetHeader("X-User-Id")),
			DisplayName: strings.TrimSpace(c.GetHeader("X-User-Name")),
			PhotoURL:    strings.TrimSpace(c.GetHeader("X-User-Photo")),
			IsAdmin:     c.GetHeader("X-Admin") == "true",
		})
		c.Next()
	}
}

func caller(c *gin.Context) identity.Caller {
	v, _ := c.Get(callerKey)
	id, _ := v.(identity.Caller)
	return id
}

// selfOrAdmin guards account-scoped reads and writes.
func selfOrAdmin(c *gin.Context, accountID string) bool {
	id := caller(c)
	if id.UserID == accountID || id.IsAdmin {
		return true
	}
	_ = c.Error(errutil.Forbidden("not allowed for this account"))
	return false
}

type redeemRequest struct {
	Pool string `json:"pool" binding:"required"`
	Code string `json:"code" binding:"required"`
}

func (h *Handler) redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	code, err := h.redemption.Redeem(c.Request.Context(), caller(c), req.Pool, req.Code)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    code.Code,
		"pool":    code.Pool,
		"used_at": code.UsedAt,
	})
}

type distributeRequest struct {
	Amount float64 `json:"amount"`
}

func (h *Handler) distribute(c *gin.Context) {
	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	result, err := h.giveaway.Distribute(c.Request.Context(), caller(c), req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}

	recipients := make([]gin.H, 0, len(result.Entries))
	for _, entry := range result.Entries {
		recipients = append(recipients, gin.H{
			"recipient_id":    entry.RecipientID,
			"amount_received": entry.AmountReceived,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       result.Run.RunID,
		"total_amount": result.Run.TotalAmount,
		"total_shares": result.Run.TotalShares,
		"recipients":   recipients,
	})
}

func (h *Handler) listRuns(c *gin.Context) {
	runs, err := h.giveaway.ListRuns(c.Request.Context(), caller(c), intQuery(c, "limit"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) getRun(c *gin.Context) {
	if !caller(c).IsAdmin {
		_ = c.Error(errutil.Forbidden("run inspection requires admin"))
		return
	}

	run, err := h.giveaway.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) balance(c *gin.Context) {
	accountID := c.Param("id")
	if !selfOrAdmin(c, accountID) {
		return
	}

	balance, err := h.accounts.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) listHistory(c *gin.Context) {
	accountID := c.Param("id")
	if !selfOrAdmin(c, accountID) {
		return
	}

	ctx := c.Request.Context()

	if c.Query("watch") == "true" {
		snapshots, err := h.history.Watch(ctx, accountID)
		if err != nil {
			_ = c.Error(err)
			return
		}

		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Stream(func(w io.Writer) bool {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					return false
				}
				c.SSEvent("history", snapshot)
				return true
			case <-ctx.Done():
				return false
			}
		})
		return
	}

	entries, err := h.history.ListHistory(ctx, accountID, intQuery(c, "limit"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type spendRequest struct {
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
}

func (h *Handler) spend(c *gin.Context) {
	accountID := c.Param("id")
	if !selfOrAdmin(c, accountID) {
		return
	}

	var req spendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.accounts.SpendCredits(c.Request.Context(), accountID, req.Amount, strings.TrimSpace(req.Reference)); err != nil {
		_ = c.Error(err)
		return
	}

	balance, err := h.accounts.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

type generateCodesRequest struct {
	Pool  string `json:"pool" binding:"required"`
	Count int    `json:"count"`
}

func (h *Handler) generateCodes(c *gin.Context) {
	var req generateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid request body", errutil.WithErr(err)))
		return
	}

	codes, err := h.redemption.GenerateCodes(c.Request.Context(), caller(c), req.Pool, req.Count)
	if err != nil {
		_ = c.Error(err)
		return
	}

	values := make([]string, 0, len(codes))
	for _, code := range codes {
		values = append(values, code.Code)
	}
	c.JSON(http.StatusOK, gin.H{"pool": req.Pool, "codes": values})
}

func (h *Handler) listCodes(c *gin.Context) {
	query := redemption.ListCodesQuery{
		Pool:  strings.TrimSpace(c.Query("pool")),
		Limit: intQuery(c, "limit"),
	}
	if raw := c.Query("used"); raw != "" {
		used := raw == "true"
		query.Used = &used
	}

	codes, err := h.redemption.ListCodes(c.Request.Context(), caller(c), query)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

func intQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
