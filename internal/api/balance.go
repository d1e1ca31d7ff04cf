package api

import (
	"errors"
	"net/http"

	"referral_rewards/internal/middleware"
	"referral_rewards/internal/service"
	"referral_rewards/pkg/auth"
	"referral_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type balanceRoutes struct {
	bs service.BalanceServiceI
	a  *auth.JWTAuth
}

func NewBalanceRoutes(handler *gin.RouterGroup, bs service.BalanceServiceI, a *auth.JWTAuth, authz *middleware.Authorization) {
	r := &balanceRoutes{bs: bs, a: a}

	handler.POST("/add-balance", r.AddBalance)

	protected := handler.Group("/")
	protected.Use(a.AuthMiddleware())
	{
		protected.GET("/balance", r.GetBalance)
	}

	admin := handler.Group("/users")
	admin.Use(a.AuthMiddleware(), authz.AdminOnly())
	{
		admin.PUT("/:userId", r.OverwriteBalance)
	}
}

type AddBalanceRequest struct {
	Username string `json:"username"`
	Amount   *int64 `json:"amount"`
}

func (r *balanceRoutes) AddBalance(c *gin.Context) {
	log := logger.Logger()

	var req AddBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be a number"})
		return
	}

	if req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username is required"})
		return
	}
	if req.Amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be a number"})
		return
	}

	_, err := r.bs.Credit(c.Request.Context(), req.Username, *req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error("failed to add balance", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Balance added successfully"})
}

func (r *balanceRoutes) GetBalance(c *gin.Context) {
	log := logger.Logger()

	accountID, ok := auth.AccountIDFromContext(c)
	if !ok {
		log.Error("account id not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	balance, err := r.bs.Get(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error("failed to get balance", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

type OverwriteBalanceRequest struct {
	NewBalance *int64 `json:"newBalance"`
}

func (r *balanceRoutes) OverwriteBalance(c *gin.Context) {
	log := logger.Logger()

	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		log.Error("failed to parse userId", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}

	var req OverwriteBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.NewBalance == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "newBalance must be a number"})
		return
	}

	if err := r.bs.Overwrite(c.Request.Context(), id, *req.NewBalance); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error("failed to update balance", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User balance updated successfully"})
}
