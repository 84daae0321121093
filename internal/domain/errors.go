package domain

import "errors"

var (
	ErrInvalidMoveFormat = errors.New("invalid move format")
	ErrIllegalMove       = errors.New("illegal move")
	ErrGameNotFound      = errors.New("game not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrNotInRoom         = errors.New("not in room")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrAwaitingOpponent  = errors.New("waiting for opponent")
	ErrEngineFailure     = errors.New("engine failure")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidColor      = errors.New("invalid color")
	ErrBadRequest        = errors.New("bad request")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrEngineFailure, "engine_failure"},
	{ErrInvalidMoveFormat, "invalid_move_format"},
	{ErrIllegalMove, "illegal_move"},
	{ErrGameNotFound, "game_not_found"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomFull, "room_full"},
	{ErrNotInRoom, "not_in_room"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrAwaitingOpponent, "awaiting_opponent"},
	{ErrInvalidDifficulty, "invalid_difficulty"},
	{ErrInvalidColor, "invalid_color"},
	{ErrBadRequest, "bad_request"},
}

// ErrorCode returns the stable wire code for err, or "internal". Engine
// failures win over any validation error they wrap.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// Recoverable reports whether the caller may retry the same request.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidMoveFormat),
		errors.Is(err, ErrIllegalMove),
		errors.Is(err, ErrNotYourTurn),
		errors.Is(err, ErrAwaitingOpponent),
		errors.Is(err, ErrEngineFailure):
		return true
	}
	return false
}

// GameError ties err to a bot game that exists despite the failure, so the
// caller can address it.
type GameError struct {
	GameID string
	Err    error
}

func (e *GameError) Error() string { return "game " + e.GameID + ": " + e.Err.Error() }

func (e *GameError) Unwrap() error { return e.Err }

// GameIDOf returns the game id attached to err, if any.
func GameIDOf(err error) string {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.GameID
	}
	return ""
}
