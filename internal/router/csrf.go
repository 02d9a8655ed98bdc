package router

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"pictopercept/internal/utils"
)

const (
	csrfTokenSessionKey = "csrf_token"
	csrfTokenFormKey    = "_csrf"
	csrfTokenContextKey = "csrf_token"
	csrfTokenHeaderKey  = "X-CSRF-Token"
)

// CSRFProtection keeps one token per cookie session and rejects unsafe
// requests that do not echo it back in the form or header.
func CSRFProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		token, ok := session.Get(csrfTokenSessionKey).(string)
		if !ok || token == "" {
			if isUnsafe(c.Request.Method) {
				reject(c, errors.New("CSRF token not found in session"))
				return
			}
			var err error
			token, err = utils.GenerateSecureToken(32)
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to generate CSRF token"))
				return
			}
			session.Set(csrfTokenSessionKey, token)
			if err := session.Save(); err != nil {
				c.AbortWithError(http.StatusInternalServerError, errors.New("failed to save session"))
				return
			}
		}
		c.Set(csrfTokenContextKey, token)

		if isUnsafe(c.Request.Method) {
			submitted := c.PostForm(csrfTokenFormKey)
			if submitted == "" {
				submitted = c.GetHeader(csrfTokenHeaderKey)
			}
			if subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
				reject(c, errors.New("invalid CSRF token"))
				return
			}
		}
		c.Next()
	}
}

func isUnsafe(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func reject(c *gin.Context, err error) {
	if c.GetHeader("HX-Request") == "true" {
		c.Header("HX-Redirect", "/")
	}
	c.AbortWithError(http.StatusForbidden, err)
}
