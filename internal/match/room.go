package match

import (
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

// Channel is the outbound side of a participant's connection. Send must not
// block; the transport owns the connection and its lifetime.
type Channel interface {
	Send(msg chessdto.LiveMessage) error
}

type State int

const (
	WaitingForOpponent State = iota
	Active
	Finished
	Abandoned
)

func (s State) String() string {
	switch s {
	case WaitingForOpponent:
		return "waiting_for_opponent"
	case Active:
		return "active"
	case Finished:
		return "finished"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

type seat struct {
	userID int64
	color  domain.Color
	ch     Channel
}

// Room is a live two-player match. All fields are guarded by mu.
type Room struct {
	mu sync.Mutex

	code      string
	creatorID int64
	seats     map[int64]*seat
	game      *nchess.Game
	movesSAN  []string
	state     State
	startedAt time.Time
	closed    bool
}

func newRoom(code string, creatorID int64) *Room {
	return &Room{
		code:      code,
		creatorID: creatorID,
		seats:     make(map[int64]*seat, 2),
		game:      nchess.NewGame(),
		state:     WaitingForOpponent,
	}
}

func (r *Room) fen() string        { return r.game.FEN() }
func (r *Room) turn() domain.Color { return chess.Turn(r.game.Position()) }

// freeColor is the color not held by the seated player, white for an
// empty room.
func (r *Room) freeColor() domain.Color {
	for _, s := range r.seats {
		return s.color.Opposite()
	}
	return domain.White
}

func (r *Room) seatOf(color domain.Color) *seat {
	for _, s := range r.seats {
		if s.color == color {
			return s
		}
	}
	return nil
}

// broadcast enqueues msg on every seat in a fixed white, black order.
func (r *Room) broadcast(msg chessdto.LiveMessage, onErr func(userID int64, err error)) {
	for _, c := range []domain.Color{domain.White, domain.Black} {
		s := r.seatOf(c)
		if s == nil || s.ch == nil {
			continue
		}
		if err := s.ch.Send(msg); err != nil && onErr != nil {
			onErr(s.userID, err)
		}
	}
}

// Snapshot is a read-only view of a room.
type Snapshot struct {
	Code      string
	CreatorID int64
	State     State
	FEN       string
	Turn      domain.Color
	Seats     map[int64]domain.Color
	MovesSAN  []string
}

func (r *Room) snapshot() Snapshot {
	seats := make(map[int64]domain.Color, len(r.seats))
	for id, s := range r.seats {
		seats[id] = s.color
	}
	return Snapshot{
		Code:      r.code,
		CreatorID: r.creatorID,
		State:     r.state,
		FEN:       r.fen(),
		Turn:      r.turn(),
		Seats:     seats,
		MovesSAN:  append([]string(nil), r.movesSAN...),
	}
}
