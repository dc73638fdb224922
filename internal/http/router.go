// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, sessions, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/config"
	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/http/handlers"
	"github.com/khaled-alabsi/voting/internal/http/middleware"
	"github.com/khaled-alabsi/voting/internal/live"
	"github.com/khaled-alabsi/voting/internal/repo"
	"github.com/khaled-alabsi/voting/internal/services"
)

// pollRepoShim adapts the repository free functions to the services.PollRepo
// interface expected by the PollService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type pollRepoShim struct{}

// CreatePoll proxies repo.CreatePoll.
func (pollRepoShim) CreatePoll(ctx context.Context, db *gorm.DB, p *domain.Poll) error {
	return repo.CreatePoll(ctx, db, p)
}

// GetPoll proxies repo.GetPoll.
func (pollRepoShim) GetPoll(ctx context.Context, db *gorm.DB, id string) (*domain.Poll, error) {
	return repo.GetPoll(ctx, db, id)
}

// ListPollsByCreator proxies repo.ListPollsByCreator.
func (pollRepoShim) ListPollsByCreator(ctx context.Context, db *gorm.DB, creatorID string, offset, limit int) ([]domain.Poll, error) {
	return repo.ListPollsByCreator(ctx, db, creatorID, offset, limit)
}

// CountPollsByCreator proxies repo.CountPollsByCreator.
func (pollRepoShim) CountPollsByCreator(ctx context.Context, db *gorm.DB, creatorID string) (int64, error) {
	return repo.CountPollsByCreator(ctx, db, creatorID)
}

// UpdatePollFields proxies repo.UpdatePollFields.
func (pollRepoShim) UpdatePollFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	return repo.UpdatePollFields(ctx, db, id, fields)
}

// DeletePollCascade proxies repo.DeletePollCascade.
func (pollRepoShim) DeletePollCascade(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeletePollCascade(ctx, db, id)
}

// AddQuestion proxies repo.AddQuestion.
func (pollRepoShim) AddQuestion(ctx context.Context, db *gorm.DB, q *domain.Question) error {
	return repo.AddQuestion(ctx, db, q)
}

// AddAnswer proxies repo.AddAnswer.
func (pollRepoShim) AddAnswer(ctx context.Context, db *gorm.DB, a *domain.Answer) error {
	return repo.AddAnswer(ctx, db, a)
}

// CountAnswersForQuestion proxies repo.CountAnswersForQuestion.
func (pollRepoShim) CountAnswersForQuestion(ctx context.Context, db *gorm.DB, questionID string) (int64, error) {
	return repo.CountAnswersForQuestion(ctx, db, questionID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), sessions,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Structured request logging
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Session cookie resolution (before auth, idempotency, rate limiting,
//     which all key on the session identity)
//  8. Bearer auth (optional; attaches user id)
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per session/IP, bypass on replay)
//  11. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, hub *live.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Dependency injection: services ← repo/db
	pollSvc := services.NewPollService(db, pollRepoShim{}, cfg.BaseURL)
	voteSvc := services.NewVoteService(db)
	sessSvc := services.NewSessionService(db)
	sessSvc.IdleTTL = cfg.SessionTTL
	authSvc := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL)

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured request logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Session cookie: resolve or mint the opaque browser token
	r.Use(middleware.Session(sessSvc.Initialize, cfg.SessionTTL))

	// 8) Optional bearer auth
	r.Use(middleware.BearerAuth(authSvc.ValidateToken))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, voterKey, pollID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, voterKey, pollID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 10) Token-bucket rate limiter per session/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture. The session cookie requires credentials, so wildcard
	// origins are only used when no allowlist is configured (dev setups).
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	recordIdem := func(ctx context.Context, voterKey, pollID, key string, now time.Time) error {
		_, err := repo.CreateIdempotency(ctx, db, voterKey, pollID, key, "", http.StatusCreated, cfg.IdempotencyTTL)
		return err
	}
	h := handlers.New(pollSvc, voteSvc, sessSvc, authSvc, hub, recordIdem)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Auth
		api.POST("/auth/anonymous", h.SignInAnonymously)
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		// Polls
		api.POST("/polls", h.CreatePoll)
		api.GET("/polls", h.ListPolls)
		api.GET("/polls/:id", h.GetPoll)
		api.PATCH("/polls/:id", h.UpdatePoll)
		api.DELETE("/polls/:id", h.DeletePoll)
		api.POST("/polls/:id/questions", h.AddQuestion)
		api.POST("/polls/:id/questions/:qid/answers", h.AddAnswerOption)

		// Votes and results
		api.POST("/polls/:id/votes", h.SubmitVote)
		api.GET("/polls/:id/votes", h.ListVotes)
		api.GET("/polls/:id/stats", h.GetStats)
		api.GET("/polls/:id/export", gzip.Gzip(gzip.DefaultCompression), h.ExportPoll)

		// Sessions
		api.POST("/polls/:id/join", h.JoinPoll)
		api.POST("/polls/:id/voted", h.MarkVoted)
		api.GET("/polls/:id/visitors", h.ListVisitors)
		api.GET("/session/history", h.SessionHistory)
		api.DELETE("/session", h.SignOut)

		// Live updates
		api.GET("/polls/:id/live", h.LivePoll)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
