package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pictopercept/internal/handlers"
	"pictopercept/internal/services"
)

// SessionLoader resolves the survey session named in the cookie and puts it
// in the context. IDs the registry no longer knows (server restart,
// eviction) are dropped from the cookie.
func SessionLoader(log *zap.Logger, service *services.SurveyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(handlers.SessionIDKey).(string)
		if !ok {
			c.Next()
			return
		}

		sess, err := service.Get(id)
		if err != nil {
			log.Debug("Dropping unknown survey session", zap.String("session_id", id))
			session.Delete(handlers.SessionIDKey)
			if err := session.Save(); err != nil {
				log.Error("Failed to save session", zap.Error(err))
			}
			c.Next()
			return
		}

		c.Set(handlers.SurveyContextKey, sess)
		c.Next()
	}
}

// SurveyRequired sends requests without a survey session back to consent.
func SurveyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := handlers.CurrentSession(c); !exists {
			if c.GetHeader("HX-Request") == "true" {
				c.Header("HX-Redirect", "/")
			} else {
				c.Redirect(http.StatusFound, "/")
			}
			c.Abort()
			return
		}
		c.Next()
	}
}
