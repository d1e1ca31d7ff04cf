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

type referralRoutes struct {
	rs service.ReferralServiceI
	a  *auth.JWTAuth
}

func NewReferralRoutes(handler *gin.RouterGroup, rs service.ReferralServiceI, a *auth.JWTAuth,
	authz *middleware.Authorization, limiter *middleware.RateLimiter) {
	r := &referralRoutes{rs: rs, a: a}
	h := handler.Group("/referral")
	{
		h.POST("/verify", r.RegisterWithReferral)
		h.POST("/expire", r.ExpireLink)
		h.GET("/generate", limiter.Limit("referral_generate"), a.AuthMiddleware(), r.GenerateLink)

		admin := h.Group("/expire")
		admin.Use(a.AuthMiddleware(), authz.AdminOnly())
		{
			admin.PUT("/:userId", r.ExpireLinkAdmin)
		}
	}
}

type RegisterWithReferralRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ReferralLink string `json:"referralLink"`
}

func (r *referralRoutes) RegisterWithReferral(c *gin.Context) {
	log := logger.Logger()

	var req RegisterWithReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if msg, ok := validateCredentials(req.Username, req.Password); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if req.ReferralLink == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Referal code is empty"})
		return
	}

	_, err := r.rs.RegisterWithReferral(c.Request.Context(), req.Username, req.Password, req.ReferralLink)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already registered"})
		case errors.Is(err, service.ErrLinkInactive):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Referral link is no longer valid"})
		default:
			log.Error("failed to register with referral", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}

func (r *referralRoutes) GenerateLink(c *gin.Context) {
	log := logger.Logger()

	accountID, ok := auth.AccountIDFromContext(c)
	if !ok {
		log.Error("account id not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	code, err := r.rs.IssueLink(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error("failed to generate referral link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate referral link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"referralLink": code})
}

type ExpireLinkRequest struct {
	Username string `json:"username"`
}

func (r *referralRoutes) ExpireLink(c *gin.Context) {
	log := logger.Logger()

	var req ExpireLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username is required"})
		return
	}

	if err := r.rs.Expire(c.Request.Context(), req.Username); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error("failed to expire referral link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to expire referral link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Referral link expired successfully"})
}

func (r *referralRoutes) ExpireLinkAdmin(c *gin.Context) {
	log := logger.Logger()

	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		log.Error("failed to parse userId", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}

	if err := r.rs.ExpireAdmin(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Error("failed to expire referral link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to expire referral link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Referral link expired successfully"})
}
