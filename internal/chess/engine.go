package chess

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/internal/chess/uci"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"go.uber.org/zap"
)

type EngineConfig struct {
	BinaryPath string
	Threads    int
	HashMB     int
}

// Engine owns one UCI process per game. Processes start on the first
// BestMove for a game and live until Release or until SweepIdle stops them.
type Engine struct {
	cfg    EngineConfig
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	handles map[string]*engineHandle
	closed  bool
}

type engineHandle struct {
	mu         sync.Mutex
	session    *uci.Session
	difficulty domain.Difficulty
	released   bool
	lastUsed   time.Time
}

func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, fmt.Errorf("engine binary path required")
	}
	if logger == nil {
		logger = obslog.L()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		handles: make(map[string]*engineHandle),
	}, nil
}

// BestMove searches fen with the preset for d and returns the move in UCI
// notation. Any engine error is reported as domain.ErrEngineFailure and the
// process behind the handle is dropped; the next call starts a new one.
func (e *Engine) BestMove(ctx context.Context, gameID, fen string, d domain.Difficulty) (string, error) {
	preset, err := GetPreset(d)
	if err != nil {
		return "", err
	}
	limits, err := SearchLimits(preset)
	if err != nil {
		return "", err
	}

	h, err := e.handle(gameID)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return "", fmt.Errorf("%w: engine released for game %s", domain.ErrEngineFailure, gameID)
	}
	if h.session != nil && h.difficulty != d {
		_ = h.session.Close()
		h.session = nil
	}
	if h.session == nil {
		s, err := uci.NewSession(ctx, e.cfg.BinaryPath, sessionOptions(preset, e.cfg.Threads, e.cfg.HashMB))
		if err != nil {
			e.logger.Warn("engine_start_failed", zap.String("game_id", gameID), zap.Error(err))
			return "", fmt.Errorf("%w: %w", domain.ErrEngineFailure, err)
		}
		h.session = s
		h.difficulty = d
		e.logger.Debug("engine_handle_created",
			zap.String("game_id", gameID),
			zap.String("difficulty", string(d)),
			zap.Int("skill", preset.SkillLevel),
		)
	}

	start := time.Now()
	resp, err := h.session.Search(ctx, uci.SearchRequest{FEN: fen, Limits: limits})
	h.lastUsed = e.now()
	if err != nil {
		_ = h.session.Close()
		h.session = nil
		e.logger.Warn("engine_search_failed",
			zap.String("game_id", gameID),
			zap.String("fen", fen),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", domain.ErrEngineFailure, err)
	}
	e.logger.Debug("engine_best_move",
		zap.String("game_id", gameID),
		zap.String("move", resp.BestMove),
		zap.Int("depth", resp.Depth),
		zap.Int("score_cp", resp.ScoreCP),
		zap.Duration("elapsed", time.Since(start)),
	)
	return strings.ToLower(resp.BestMove), nil
}

func (e *Engine) handle(gameID string) (*engineHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: engine closed", domain.ErrEngineFailure)
	}
	h, ok := e.handles[gameID]
	if !ok {
		h = &engineHandle{}
		e.handles[gameID] = h
	}
	return h, nil
}

// Release stops the process for gameID, if any.
func (e *Engine) Release(gameID string) {
	e.mu.Lock()
	h, ok := e.handles[gameID]
	delete(e.handles, gameID)
	e.mu.Unlock()
	if !ok {
		return
	}
	h.release()
	e.logger.Debug("engine_handle_released", zap.String("game_id", gameID))
}

// SweepIdle stops processes whose last search finished more than idle ago.
// The handle stays, so the next BestMove for that game starts a new process.
// Handles busy in a search are skipped.
func (e *Engine) SweepIdle(idle time.Duration) int {
	e.mu.Lock()
	handles := make(map[string]*engineHandle, len(e.handles))
	for id, h := range e.handles {
		handles[id] = h
	}
	e.mu.Unlock()

	cutoff := e.now().Add(-idle)
	stopped := 0
	for id, h := range handles {
		if !h.mu.TryLock() {
			continue
		}
		if h.session != nil && h.lastUsed.Before(cutoff) {
			_ = h.session.Close()
			h.session = nil
			stopped++
			e.logger.Debug("engine_idle_stopped", zap.String("game_id", id))
		}
		h.mu.Unlock()
	}
	if stopped > 0 {
		e.logger.Info("engine_idle_sweep", zap.Int("stopped", stopped))
	}
	return stopped
}

// RunSweeper calls SweepIdle every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepIdle(idle)
		}
	}
}

// ActiveProcesses is the number of handles with a running process.
func (e *Engine) ActiveProcesses() int {
	e.mu.Lock()
	handles := make([]*engineHandle, 0, len(e.handles))
	for _, h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	n := 0
	for _, h := range handles {
		h.mu.Lock()
		if h.session != nil {
			n++
		}
		h.mu.Unlock()
	}
	return n
}

// ActiveHandles is the number of games with a handle entry.
func (e *Engine) ActiveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	handles := e.handles
	e.handles = make(map[string]*engineHandle)
	e.mu.Unlock()

	for _, h := range handles {
		h.release()
	}
	return nil
}

func (h *engineHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	if h.session != nil {
		_ = h.session.Close()
		h.session = nil
	}
}
