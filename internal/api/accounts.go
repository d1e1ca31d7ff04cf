package api

import (
	"errors"
	"net/http"

	"referral_rewards/internal/middleware"
	"referral_rewards/internal/model"
	"referral_rewards/internal/service"
	"referral_rewards/pkg/auth"
	"referral_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type accountRoutes struct {
	as service.AccountServiceI
	a  *auth.JWTAuth
}

func NewAccountRoutes(handler *gin.RouterGroup, as service.AccountServiceI, a *auth.JWTAuth, authz *middleware.Authorization) {
	r := &accountRoutes{as: as, a: a}

	handler.POST("/register", r.Register)
	handler.POST("/login", r.Login)

	protected := handler.Group("/")
	protected.Use(a.AuthMiddleware())
	{
		protected.GET("/myProfile", r.GetMyProfile)
	}

	admin := handler.Group("/users")
	admin.Use(a.AuthMiddleware(), authz.AdminOnly())
	{
		admin.GET("", r.ListAccounts)
		admin.GET("/:userId", r.GetAccountByID)
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *accountRoutes) Register(c *gin.Context) {
	log := logger.Logger()

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if msg, ok := validateCredentials(req.Username, req.Password); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	_, err := r.as.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
			return
		}
		log.Error("failed to register account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *accountRoutes) Login(c *gin.Context) {
	log := logger.Logger()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username is required"})
		return
	}
	if req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
		return
	}

	account, err := r.as.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		default:
			log.Error("failed to login", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		}
		return
	}

	token, err := r.a.IssueToken(account.ID)
	if err != nil {
		log.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (r *accountRoutes) GetMyProfile(c *gin.Context) {
	log := logger.Logger()

	accountID, ok := auth.AccountIDFromContext(c)
	if !ok {
		log.Error("account id not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	account, err := r.as.GetAccountByID(c.Request.Context(), accountID)
	if err != nil {
		log.Error("failed to get account", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": accountView(account)})
}

func (r *accountRoutes) ListAccounts(c *gin.Context) {
	log := logger.Logger()

	accounts, err := r.as.ListAccounts(c.Request.Context())
	if err != nil {
		log.Error("failed to list accounts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	out := make([]gin.H, len(accounts))
	for i, account := range accounts {
		out[i] = gin.H{
			"username":      account.Username,
			"balance":       account.Balance,
			"referralLink":  account.ReferralLink,
			"referralCount": account.ReferralCount,
		}
	}

	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (r *accountRoutes) GetAccountByID(c *gin.Context) {
	log := logger.Logger()

	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		log.Error("failed to parse userId", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}

	account, err := r.as.GetAccountByID(c.Request.Context(), id)
	if err != nil {
		log.Error("failed to get account", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": accountView(account)})
}

func validateCredentials(username, password string) (string, bool) {
	if username == "" {
		return "Username is required", false
	}
	if len(password) < 6 {
		return "Password must be at least 6 characters long", false
	}
	return "", true
}

func accountView(account *model.Account) gin.H {
	history := make([]gin.H, len(account.UsageHistory))
	for i, usage := range account.UsageHistory {
		history[i] = gin.H{
			"referralLink": usage.ReferralLink,
			"usageDate":    usage.UsedAt,
			"users":        usage.RedeemedBy,
		}
	}

	return gin.H{
		"userId":                   account.ID,
		"username":                 account.Username,
		"balance":                  account.Balance,
		"role":                     account.Role,
		"referralLink":             account.ReferralLink,
		"referralCount":            account.ReferralCount,
		"referralExpiry":           account.ReferralExpiry,
		"referralLinkUsageHistory": history,
	}
}
