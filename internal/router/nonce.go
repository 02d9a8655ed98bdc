package router

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pictopercept/internal/utils"
)

const CspNonceContextKey = "csp_nonce"

// NonceMiddleware generates a fresh CSP nonce for every response.
func NonceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := utils.GenerateSecureToken(16)
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("failed to generate CSP nonce"))
			return
		}
		c.Set(CspNonceContextKey, nonce)
		c.Next()
	}
}
