// Package botsession runs games against the engine. Each game owns one board
// and one engine handle, and every operation on a game holds that game's
// lock. The registry lock only guards the map.
package botsession

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/store"
	"go.uber.org/zap"
)

// Engine picks the bot's reply. Release drops the handle kept for gameID.
type Engine interface {
	BestMove(ctx context.Context, gameID, fen string, d domain.Difficulty) (string, error)
	Release(gameID string)
}

type StartResult struct {
	GameID      string
	FEN         string
	Turn        domain.Color
	PlayerColor domain.Color
	Difficulty  domain.Difficulty
	BotMove     string
}

type MoveResult struct {
	GameID     string
	FEN        string
	Turn       domain.Color
	PlayerMove string
	BotMove    string
	GameOver   bool
	Result     string
	Reason     string
}

type GameSummary struct {
	GameID      string
	FEN         string
	Turn        domain.Color
	PlayerColor domain.Color
	Difficulty  domain.Difficulty
	LastPlayed  time.Time
}

type session struct {
	mu       sync.Mutex
	id       string
	record   *domain.GameRecord
	game     *nchess.Game
	released bool
}

type Manager struct {
	store  store.GameStore
	engine Engine
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session

	pickColor func() (domain.Color, error)
}

func NewManager(gs store.GameStore, engine Engine, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = obslog.L()
	}
	return &Manager{
		store:     gs,
		engine:    engine,
		logger:    logger,
		sessions:  make(map[string]*session),
		pickColor: randomColor,
	}
}

func randomColor() (domain.Color, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return "", err
	}
	if n.Int64() == 0 {
		return domain.White, nil
	}
	return domain.Black, nil
}

// StartGame creates a game at the start position. When the player takes
// black the engine opens and that move is persisted before returning.
func (m *Manager) StartGame(ctx context.Context, userID int64, difficulty domain.Difficulty, requestedColor string) (*StartResult, error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := chess.GetPreset(difficulty); err != nil {
		return nil, err
	}
	color, random, err := domain.ParseColor(requestedColor)
	if err != nil {
		return nil, err
	}
	if random {
		if color, err = m.pickColor(); err != nil {
			return nil, fmt.Errorf("pick color: %w", err)
		}
	}

	game := nchess.NewGame()
	rec, err := m.store.CreateGame(ctx, userID, game.FEN(), color, difficulty)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	s := m.acquire(rec.GameID)
	defer s.mu.Unlock()
	s.record = rec.Clone()
	s.game = game

	m.logger.Info("bot_game_start",
		zap.String("game_id", rec.GameID),
		zap.Int64("user_id", userID),
		zap.String("player_color", string(color)),
		zap.String("difficulty", string(difficulty)),
	)

	res := &StartResult{
		GameID:      rec.GameID,
		FEN:         game.FEN(),
		Turn:        domain.White,
		PlayerColor: color,
		Difficulty:  difficulty,
	}
	if color == domain.White {
		return res, nil
	}

	mr, err := m.botReply(ctx, s, &MoveResult{GameID: rec.GameID})
	if err != nil {
		return nil, &domain.GameError{GameID: rec.GameID, Err: fmt.Errorf("opening move: %w", err)}
	}
	res.FEN = mr.FEN
	res.Turn = mr.Turn
	res.BotMove = mr.BotMove
	return res, nil
}

// ApplyMove plays the player's move and, unless the game ended, the
// engine's reply.
func (m *Manager) ApplyMove(ctx context.Context, gameID, moveText string) (*MoveResult, error) {
	ctx = context.WithoutCancel(ctx)
	s := m.acquire(gameID)
	defer s.mu.Unlock()

	if err := m.load(ctx, s); err != nil {
		return nil, err
	}
	pos := s.game.Position()
	if chess.Turn(pos) != s.record.PlayerColor {
		return nil, fmt.Errorf("%w: waiting for the engine reply", domain.ErrIllegalMove)
	}
	mv, err := chess.ParseAndValidate(moveText, pos)
	if err != nil {
		return nil, err
	}
	san := chess.EncodeSAN(pos, mv)
	if err := s.game.Move(mv, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIllegalMove, err)
	}

	res := &MoveResult{GameID: gameID, PlayerMove: san}
	if out := chess.CheckOutcome(s.game); out.Terminal {
		return m.finalize(ctx, s, res, out)
	}
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	return m.botReply(ctx, s, res)
}

// ResumeBotMove asks the engine again after a failed reply. It is only
// valid while the engine is to move.
func (m *Manager) ResumeBotMove(ctx context.Context, gameID string) (*MoveResult, error) {
	ctx = context.WithoutCancel(ctx)
	s := m.acquire(gameID)
	defer s.mu.Unlock()

	if err := m.load(ctx, s); err != nil {
		return nil, err
	}
	if chess.Turn(s.game.Position()) == s.record.PlayerColor {
		return nil, fmt.Errorf("%w: it is the player's turn", domain.ErrIllegalMove)
	}
	return m.botReply(ctx, s, &MoveResult{GameID: gameID})
}

// botReply runs with s locked and the player's position already persisted.
func (m *Manager) botReply(ctx context.Context, s *session, res *MoveResult) (*MoveResult, error) {
	fen := s.game.FEN()
	text, err := m.engine.BestMove(ctx, s.id, fen, s.record.Difficulty)
	if err != nil {
		if !errors.Is(err, domain.ErrEngineFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrEngineFailure, err)
		}
		m.logger.Warn("bot_engine_failed", zap.String("game_id", s.id), zap.Error(err))
		return nil, err
	}

	pos := s.game.Position()
	mv, err := chess.ParseAndValidate(text, pos)
	if err != nil {
		m.logger.Warn("bot_engine_bad_move", zap.String("game_id", s.id), zap.String("move", text), zap.String("fen", fen))
		return nil, fmt.Errorf("%w: engine returned %q: %v", domain.ErrEngineFailure, text, err)
	}
	res.BotMove = chess.EncodeUCI(pos, mv)
	if err := s.game.Move(mv, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineFailure, err)
	}

	if out := chess.CheckOutcome(s.game); out.Terminal {
		return m.finalize(ctx, s, res, out)
	}
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	res.FEN = s.game.FEN()
	res.Turn = chess.Turn(s.game.Position())
	return res, nil
}

// finalize is the only way a game ends: persist, deactivate, release.
func (m *Manager) finalize(ctx context.Context, s *session, res *MoveResult, out chess.Outcome) (*MoveResult, error) {
	fen := s.game.FEN()
	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	if err := m.store.Deactivate(ctx, s.id); err != nil {
		m.evict(s)
		return nil, fmt.Errorf("deactivate game: %w", err)
	}
	m.evict(s)

	m.logger.Info("bot_game_over",
		zap.String("game_id", s.id),
		zap.String("result", out.Result),
		zap.String("reason", out.Reason),
	)
	res.FEN = fen
	res.Turn = chess.Turn(s.game.Position())
	res.GameOver = true
	res.Result = out.Result
	res.Reason = out.Reason
	return res, nil
}

func (m *Manager) persist(ctx context.Context, s *session) error {
	if err := m.store.UpdateFEN(ctx, s.id, s.game.FEN()); err != nil {
		m.evict(s)
		m.logger.Error("bot_game_persist_failed", zap.String("game_id", s.id), zap.Error(err))
		return fmt.Errorf("persist fen: %w", err)
	}
	s.record.FEN = s.game.FEN()
	return nil
}

// load fills s from the store when it has no board yet. A stored position
// that is already terminal is finalized and reported as not found.
func (m *Manager) load(ctx context.Context, s *session) error {
	if s.game != nil {
		return nil
	}
	rec, err := m.store.GetGame(ctx, s.id)
	if err != nil {
		m.evict(s)
		return fmt.Errorf("load game: %w", err)
	}
	if rec == nil || !rec.IsActive {
		m.evict(s)
		return fmt.Errorf("%w: %s", domain.ErrGameNotFound, s.id)
	}
	game, err := chess.NewGame(rec.FEN)
	if err != nil {
		m.evict(s)
		return fmt.Errorf("restore game %s: %w", s.id, err)
	}
	s.record = rec
	s.game = game
	m.logger.Debug("bot_game_restored", zap.String("game_id", s.id))

	if out := chess.CheckOutcome(game); out.Terminal {
		if _, err := m.finalize(ctx, s, &MoveResult{GameID: s.id}, out); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrGameNotFound, s.id)
	}
	return nil
}

// acquire returns the locked session for gameID, creating an empty entry
// when none exists.
func (m *Manager) acquire(gameID string) *session {
	for {
		m.mu.Lock()
		s, ok := m.sessions[gameID]
		if !ok {
			s = &session{id: gameID}
			m.sessions[gameID] = s
		}
		m.mu.Unlock()

		s.mu.Lock()
		if !s.released {
			return s
		}
		s.mu.Unlock()
	}
}

// evict drops the board and engine handle. The caller holds s.mu.
func (m *Manager) evict(s *session) {
	s.released = true
	m.mu.Lock()
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()
	m.engine.Release(s.id)
}

func (m *Manager) ListActiveGames(ctx context.Context, userID int64) ([]GameSummary, error) {
	recs, err := m.store.GetActiveGames(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	out := make([]GameSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, summarize(r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastPlayed.After(out[j].LastPlayed) })
	return out, nil
}

func (m *Manager) LoadGame(ctx context.Context, gameID string) (*GameSummary, error) {
	rec, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	if rec == nil || !rec.IsActive {
		return nil, fmt.Errorf("%w: %s", domain.ErrGameNotFound, gameID)
	}
	sum := summarize(rec)
	return &sum, nil
}

func summarize(r *domain.GameRecord) GameSummary {
	turn := domain.White
	if g, err := chess.NewGame(r.FEN); err == nil {
		turn = chess.Turn(g.Position())
	}
	return GameSummary{
		GameID:      r.GameID,
		FEN:         r.FEN,
		Turn:        turn,
		PlayerColor: r.PlayerColor,
		Difficulty:  r.Difficulty,
		LastPlayed:  r.UpdatedAt,
	}
}

// ActiveSessions reports how many games hold a board in memory.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close drops every in-memory board and engine handle. Persisted games
// stay active and are restored on the next request.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if !s.released {
			m.evict(s)
		}
		s.mu.Unlock()
	}
}
