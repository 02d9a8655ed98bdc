package router

import (
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"pictopercept/internal/config"
	"pictopercept/internal/handlers"
	"pictopercept/internal/services"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).Round(time.Second).String())
}

// Setup builds the engine with every survey route.
func Setup(log *zap.Logger, conf *config.Config, service *services.SurveyService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(conf.Reaper.Retention.Seconds()),
	})
	router.Use(sessions.Sessions("pictopercept", store))

	router.Use(NonceMiddleware())
	router.Use(CSRFProtection())
	router.Use(SessionLoader(log, service))

	router.Use(func(c *gin.Context) {
		if c.GetHeader("HX-Request") != "true" {
			nonce := c.GetString(CspNonceContextKey)
			c.Header("Content-Security-Policy", fmt.Sprintf(
				"default-src 'self'; img-src 'self'; script-src 'self' https://unpkg.com https://cdn.jsdelivr.net 'nonce-%s'; style-src 'self' 'unsafe-inline'",
				nonce,
			))
		}
		c.Next()
	})

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "same-origin",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	surveyHandler := handlers.NewSurveyHandler(log, service, conf.Survey.Question, conf.Survey.RespondentParam)
	resultsHandler := handlers.NewResultsHandler(log, service)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: conf.Server.ConsentRateLimit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/healthz", surveyHandler.Health)
	router.GET("/", surveyHandler.ShowConsent)
	router.GET("/consent/example", surveyHandler.Example)
	router.POST("/consent", limiter, surveyHandler.Consent)

	surveyRoutes := router.Group("/survey")
	surveyRoutes.Use(SurveyRequired())
	{
		surveyRoutes.GET("", surveyHandler.Show)
		surveyRoutes.POST("/choice", surveyHandler.Choice)
		surveyRoutes.GET("/stimulus/:pos", surveyHandler.Stimulus)
		surveyRoutes.POST("/retry", surveyHandler.Retry)
		surveyRoutes.GET("/review", resultsHandler.ShowReview)
	}

	return router
}
