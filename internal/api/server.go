// Package api exposes the agent over HTTP: user onboarding, proposal and
// vote endpoints, the inbound email webhook and the cron triggers.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"governance-agent/internal/digest"
	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/models"
	"governance-agent/internal/reconciler"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type UserService interface {
	Upsert(ctx context.Context, email, wallet, smartWallet, name string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type VoteReader interface {
	Get(ctx context.Context, id string) (*models.Vote, error)
}

// ProposalSource lists proposals and forgets a wallet's cached list once it
// has voted.
type ProposalSource interface {
	governance.ProposalStore
	Invalidate(wallet string)
}

type VoteSubmitter interface {
	SubmitVote(ctx context.Context, req governance.VoteRequest) (*governance.VoteReceipt, error)
}

type ReplyHandler interface {
	HandleReply(ctx context.Context, in email.InboundEmail) error
}

type Reconciler interface {
	ReconcilePendingVotes(ctx context.Context) (reconciler.PassResult, error)
}

type DigestRunner interface {
	Run(ctx context.Context) (digest.RunResult, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Users      UserService
	Votes      VoteReader
	Proposals  ProposalSource
	Executor   VoteSubmitter
	Replies    ReplyHandler
	Reconciler Reconciler
	Digest     DigestRunner
	CronSecret string
}

type Server struct {
	echo *echo.Echo
	deps Deps
	log  *zap.SugaredLogger
}

func NewServer(deps Deps, log *zap.SugaredLogger) *Server {
	log = log.Named("api")
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	s := &Server{echo: e, deps: deps, log: log}

	e.GET("/health", s.handleHealth)
	phandle := promhttp.Handler()
	e.GET("/metrics", func(c echo.Context) error {
		phandle.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})

	api := e.Group("/api")
	api.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	api.POST("/users", s.handleCreateUser)
	api.GET("/users/:email", s.handleGetUser)
	api.GET("/proposals", s.handleListProposals)
	api.POST("/votes", s.handleSubmitVote)
	api.GET("/votes/:id", s.handleGetVote)
	api.POST("/email-reply", s.handleEmailReply)

	cron := api.Group("/cron", s.requireCronSecret)
	cron.POST("/check-pending-votes", s.handleCheckPendingVotes)
	cron.POST("/send-digest", s.handleSendDigest)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Infow("listening", "addr", addr)
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireCronSecret checks "Authorization: Bearer <CRON_SECRET>". With no
// secret configured the cron routes are closed.
func (s *Server) requireCronSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get(echo.HeaderAuthorization)
		token := strings.TrimPrefix(auth, "Bearer ")
		if s.deps.CronSecret == "" || token == auth ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.CronSecret)) != 1 {
			return &HttpError{Code: http.StatusUnauthorized, Message: ErrCodeUnauthorized, Details: "invalid cron secret"}
		}
		return next(c)
	}
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{"success": true, "data": data})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
