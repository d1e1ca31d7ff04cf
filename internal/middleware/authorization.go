package middleware

import (
	"net/http"

	"referral_rewards/internal/service"
	"referral_rewards/pkg/auth"
	"referral_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type Authorization struct {
	accountService service.AccountServiceI
}

func NewAuthorization(accountService service.AccountServiceI) *Authorization {
	return &Authorization{
		accountService: accountService,
	}
}

// AdminOnly runs after the bearer-token middleware and rejects callers
// whose account does not carry the admin role.
func (a *Authorization) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		accountID, ok := auth.AccountIDFromContext(c)
		if !ok {
			log.Error("account id not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		account, err := a.accountService.GetAccountByID(c.Request.Context(), accountID)
		if err != nil {
			log.Error("failed to get account data", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}

		if !account.IsAdmin() {
			log.Info("unauthorized access attempt to admin endpoint",
				zap.String("account_id", accountID.String()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unauthorized access"})
			return
		}

		c.Set("is_admin", true)
		c.Next()
	}
}
