// Package match runs live two-player rooms addressed by 6-digit codes.
// The registry lock guards only the code map; each room serializes its own
// board and seats.
package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/store"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

type Option func(*Registry)

// WithReserver shares code reservations with other processes.
func WithReserver(r CodeReserver) Option {
	return func(reg *Registry) {
		if r != nil {
			reg.reserver = r
		}
	}
}

// WithArchive stores finished matches.
func WithArchive(a store.ResultArchive) Option {
	return func(reg *Registry) { reg.archive = a }
}

func WithLogger(l *zap.Logger) Option {
	return func(reg *Registry) {
		if l != nil {
			reg.logger = l
		}
	}
}

type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	reserver CodeReserver
	archive  store.ResultArchive
	logger   *zap.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

func NewRegistry(opts ...Option) *Registry {
	reg := &Registry{
		rooms:    make(map[string]*Room),
		reserver: NewMemoryReserver(),
		logger:   obslog.L(),
		now:      time.Now,
		newCode:  newCode,
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

type JoinResult struct {
	Code    string
	Color   domain.Color
	FEN     string
	Started bool
}

// Join seats userID. An empty code creates a room with the caller as
// white. A seated caller keeps its color and its channel is replaced.
// The joined reply reaches ch before any start broadcast.
func (g *Registry) Join(ctx context.Context, userID int64, ch Channel, code string) (*JoinResult, error) {
	if code == "" {
		return g.create(ctx, userID, ch)
	}
	if !validCode(code) {
		return nil, fmt.Errorf("%w: %q", domain.ErrRoomNotFound, code)
	}

	r := g.lookup(code)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}

	if s, ok := r.seats[userID]; ok {
		s.ch = ch
		g.sendTo(r, s, chessdto.LiveMessage{Type: chessdto.LiveJoined, Code: r.code, Color: string(s.color), FEN: r.fen()})
		if len(r.seats) == 2 {
			g.sendTo(r, s, chessdto.LiveMessage{Type: chessdto.LiveStart, FEN: r.fen(), Turn: string(r.turn())})
		}
		g.logger.Info("room_rejoin", zap.String("code", r.code), zap.Int64("user_id", userID), zap.String("color", string(s.color)))
		return &JoinResult{Code: r.code, Color: s.color, FEN: r.fen()}, nil
	}

	if len(r.seats) >= 2 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomFull, code)
	}
	s := &seat{userID: userID, color: r.freeColor(), ch: ch}
	r.seats[userID] = s
	g.sendTo(r, s, chessdto.LiveMessage{Type: chessdto.LiveJoined, Code: r.code, Color: string(s.color), FEN: r.fen()})
	g.logger.Info("room_join", zap.String("code", r.code), zap.Int64("user_id", userID), zap.String("color", string(s.color)))

	started := false
	if len(r.seats) == 2 {
		if r.state == WaitingForOpponent {
			r.state = Active
			r.startedAt = g.now()
		}
		started = true
		r.broadcast(chessdto.LiveMessage{Type: chessdto.LiveStart, FEN: r.fen(), Turn: string(r.turn())}, g.sendFailed(r))
		g.logger.Info("room_start", zap.String("code", r.code))
	}
	return &JoinResult{Code: r.code, Color: s.color, FEN: r.fen(), Started: started}, nil
}

func (g *Registry) create(ctx context.Context, userID int64, ch Channel) (*JoinResult, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := g.newCode()
		if err != nil {
			return nil, fmt.Errorf("room code: %w", err)
		}
		ok, err := g.reserver.Reserve(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("reserve room code: %w", err)
		}
		if !ok {
			continue
		}

		r := newRoom(code, userID)
		r.mu.Lock()
		g.mu.Lock()
		if _, taken := g.rooms[code]; taken {
			g.mu.Unlock()
			r.mu.Unlock()
			continue
		}
		g.rooms[code] = r
		g.mu.Unlock()

		s := &seat{userID: userID, color: domain.White, ch: ch}
		r.seats[userID] = s
		g.sendTo(r, s, chessdto.LiveMessage{Type: chessdto.LiveJoined, Code: code, Color: string(domain.White), FEN: r.fen()})
		res := &JoinResult{Code: code, Color: domain.White, FEN: r.fen()}
		r.mu.Unlock()

		g.logger.Info("room_create", zap.String("code", code), zap.Int64("user_id", userID))
		return res, nil
	}
	return nil, ErrCodesExhausted
}

// SubmitMove plays text for userID. Rejections reach only the caller
// through the returned error and leave the board untouched.
func (g *Registry) SubmitMove(ctx context.Context, userID int64, code, text string) error {
	r, err := g.lockRoom(code)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	s, ok := r.seats[userID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotInRoom, code)
	}
	if len(r.seats) < 2 {
		return domain.ErrAwaitingOpponent
	}
	if r.turn() != s.color {
		return domain.ErrNotYourTurn
	}

	pos := r.game.Position()
	mv, err := chess.ParseAndValidate(text, pos)
	if err != nil {
		return err
	}
	san := chess.EncodeSAN(pos, mv)
	if err := r.game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIllegalMove, err)
	}
	r.movesSAN = append(r.movesSAN, san)

	onErr := g.sendFailed(r)
	r.broadcast(chessdto.LiveMessage{Type: chessdto.LiveMove, FEN: r.fen(), Turn: string(r.turn()), LastMove: san}, onErr)

	if out := chess.CheckOutcome(r.game); out.Terminal {
		g.finish(ctx, r, Finished, out.Result, out.Reason)
	}
	return nil
}

// Resign ends the match in favor of the other color.
func (g *Registry) Resign(ctx context.Context, userID int64, code string) error {
	r, err := g.lockRoom(code)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	s, ok := r.seats[userID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotInRoom, code)
	}
	g.finish(ctx, r, Finished, chess.ResignResult(s.color), chess.ReasonResignation)
	return nil
}

// Disconnect drops userID's seat if it is still bound to ch. The other
// player is told and no result is recorded. An empty room is removed.
func (g *Registry) Disconnect(ctx context.Context, userID int64, code string, ch Channel) {
	r := g.lookup(code)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	s, ok := r.seats[userID]
	if !ok || (ch != nil && s.ch != ch) {
		return
	}
	delete(r.seats, userID)
	g.logger.Info("room_leave", zap.String("code", r.code), zap.Int64("user_id", userID), zap.Int("remaining", len(r.seats)))

	if len(r.seats) == 0 {
		r.state = Abandoned
		g.remove(ctx, r)
		return
	}
	r.broadcast(chessdto.LiveMessage{Type: chessdto.LiveOpponentLeft}, g.sendFailed(r))
}

// finish broadcasts game_over, archives and removes r. The caller holds r.mu.
func (g *Registry) finish(ctx context.Context, r *Room, state State, result, reason string) {
	r.state = state
	r.broadcast(chessdto.LiveMessage{Type: chessdto.LiveGameOver, FEN: r.fen(), Result: result, Reason: reason}, g.sendFailed(r))
	g.logger.Info("room_game_over",
		zap.String("code", r.code),
		zap.String("result", result),
		zap.String("reason", reason),
		zap.Int("moves", len(r.movesSAN)),
	)
	g.archiveResult(ctx, r, result, reason)
	g.remove(ctx, r)
}

func (g *Registry) archiveResult(ctx context.Context, r *Room, result, reason string) {
	if g.archive == nil {
		return
	}
	res := &domain.MatchResult{
		Code:      r.code,
		Result:    result,
		Reason:    reason,
		MovesSAN:  append([]string(nil), r.movesSAN...),
		FinalFEN:  r.fen(),
		StartedAt: r.startedAt,
		EndedAt:   g.now(),
	}
	res.ECO, res.Opening = chess.ClassifyOpening(r.game)
	if s := r.seatOf(domain.White); s != nil {
		res.WhiteID = s.userID
	}
	if s := r.seatOf(domain.Black); s != nil {
		res.BlackID = s.userID
	}
	if err := g.archive.SaveMatchResult(context.WithoutCancel(ctx), res); err != nil {
		g.logger.Error("room_archive_failed", zap.String("code", r.code), zap.Error(err))
	}
}

// remove unregisters r exactly once. The caller holds r.mu.
func (g *Registry) remove(ctx context.Context, r *Room) {
	if r.closed {
		return
	}
	r.closed = true
	g.mu.Lock()
	if cur, ok := g.rooms[r.code]; ok && cur == r {
		delete(g.rooms, r.code)
	}
	g.mu.Unlock()
	if err := g.reserver.Release(context.WithoutCancel(ctx), r.code); err != nil {
		g.logger.Warn("room_code_release_failed", zap.String("code", r.code), zap.Error(err))
	}
	g.logger.Debug("room_removed", zap.String("code", r.code), zap.String("state", r.state.String()))
}

func (g *Registry) lookup(code string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[code]
}

// lockRoom returns the locked live room for code.
func (g *Registry) lockRoom(code string) (*Room, error) {
	r := g.lookup(code)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
	}
	return r, nil
}

func (g *Registry) sendTo(r *Room, s *seat, msg chessdto.LiveMessage) {
	if s.ch == nil {
		return
	}
	if err := s.ch.Send(msg); err != nil {
		g.sendFailed(r)(s.userID, err)
	}
}

func (g *Registry) sendFailed(r *Room) func(int64, error) {
	return func(userID int64, err error) {
		g.logger.Warn("room_send_failed", zap.String("code", r.code), zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Snapshot returns the current view of a room.
func (g *Registry) Snapshot(code string) (Snapshot, error) {
	r, err := g.lockRoom(code)
	if err != nil {
		return Snapshot{}, err
	}
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
