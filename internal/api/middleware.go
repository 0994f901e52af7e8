package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nvrd/internal/auth"
	"nvrd/internal/store"
)

const ctxUserID = "user_id"
const ctxEmail = "email"

// AuthMiddleware validates the bearer access token, grounded on the
// teacher's AuthMiddleware (same Bearer-header parsing), extended with the
// tokens_valid_from logout-all cutoff check (spec.md §8 "any access token
// whose creation time is <= the logout-all call time is rejected").
func AuthMiddleware(issuer *auth.Issuer, repo *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		var tokenString string
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, detail("authentication required"))
			c.Abort()
			return
		}

		claims, err := issuer.Parse(tokenString)
		if err != nil || claims.Type != "access" {
			c.JSON(http.StatusUnauthorized, detail("authentication required"))
			c.Abort()
			return
		}

		var user store.User
		if err := repo.DB().First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, detail("authentication required"))
			c.Abort()
			return
		}
		if claims.IssuedAt == nil || claims.IssuedAt.Time.Before(user.TokensValidFrom) {
			c.JSON(http.StatusUnauthorized, detail("authentication required"))
			c.Abort()
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxEmail, user.Email)
		c.Next()
	}
}

func currentUserID(c *gin.Context) uint {
	v, _ := c.Get(ctxUserID)
	id, _ := v.(uint)
	return id
}
