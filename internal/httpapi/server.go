// Package httpapi exposes bot games, user registration and board snapshots
// over HTTP with chi.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/park285/cheese-chess-server/internal/botsession"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/render"
	"github.com/park285/cheese-chess-server/internal/store"
	"go.uber.org/zap"
)

// BotService is the bot game surface the handlers need.
type BotService interface {
	StartGame(ctx context.Context, userID int64, difficulty domain.Difficulty, color string) (*botsession.StartResult, error)
	ApplyMove(ctx context.Context, gameID, moveText string) (*botsession.MoveResult, error)
	ResumeBotMove(ctx context.Context, gameID string) (*botsession.MoveResult, error)
	ListActiveGames(ctx context.Context, userID int64) ([]botsession.GameSummary, error)
	LoadGame(ctx context.Context, gameID string) (*botsession.GameSummary, error)
}

type Config struct {
	Bot      BotService
	Users    store.UserStore
	Renderer *render.Renderer
	Messages *msgcat.Catalog
	// Live serves the WebSocket endpoint when set.
	Live   http.Handler
	Logger *zap.Logger
}

type Server struct {
	bot      BotService
	users    store.UserStore
	renderer *render.Renderer
	messages *msgcat.Catalog
	live     http.Handler
	logger   *zap.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		bot:      cfg.Bot,
		users:    cfg.Users,
		renderer: cfg.Renderer,
		messages: cfg.Messages,
		live:     cfg.Live,
		logger:   cfg.Logger,
	}
	if s.logger == nil {
		s.logger = obslog.L()
	}
	if s.messages == nil {
		s.messages = msgcat.MustDefault()
	}
	if s.renderer == nil {
		s.renderer = render.New()
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/chess", func(r chi.Router) {
		r.Route("/bot", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/move", s.handleMove)
			r.Post("/resume", s.handleResume)
			r.Post("/load", s.handleLoad)
			r.Get("/active", s.handleActive)
		})
		r.Get("/board.png", s.handleBoard)
		if s.live != nil {
			r.Handle("/live/ws", s.live)
		}
	})

	r.Post("/users/check", s.handleCheckUser)
	return r
}
