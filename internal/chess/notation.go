package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-server/internal/domain"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ParseMove reads text as SAN first and as UCI second. It does not check
// legality beyond what decoding requires.
func ParseMove(text string, pos *nchess.Position) (*nchess.Move, error) {
	text = strings.TrimSpace(text)
	if text == "" || pos == nil {
		return nil, domain.ErrInvalidMoveFormat
	}
	if mv, err := (nchess.AlgebraicNotation{}).Decode(pos, text); err == nil && mv != nil {
		return mv, nil
	}
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(text)); err == nil && mv != nil {
		return mv, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMoveFormat, text)
}

// ValidateMove checks mv against the legal moves of pos.
func ValidateMove(mv *nchess.Move, pos *nchess.Position) error {
	if mv == nil || pos == nil {
		return domain.ErrIllegalMove
	}
	want := mv.String()
	for _, legal := range pos.ValidMoves() {
		if legal.String() == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrIllegalMove, want)
}

// ParseAndValidate is ParseMove followed by ValidateMove.
func ParseAndValidate(text string, pos *nchess.Position) (*nchess.Move, error) {
	mv, err := ParseMove(text, pos)
	if err != nil {
		return nil, err
	}
	if err := ValidateMove(mv, pos); err != nil {
		return nil, err
	}
	return mv, nil
}

// EncodeUCI and EncodeSAN render mv as played from pos.
func EncodeUCI(pos *nchess.Position, mv *nchess.Move) string {
	return strings.ToLower(nchess.UCINotation{}.Encode(pos, mv))
}

func EncodeSAN(pos *nchess.Position, mv *nchess.Move) string {
	return nchess.AlgebraicNotation{}.Encode(pos, mv)
}

// NewGame builds a game from fen; an empty fen means the start position.
func NewGame(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt), nil
}

// Turn reports the side to move as a domain color.
func Turn(pos *nchess.Position) domain.Color {
	if pos != nil && pos.Turn() == nchess.Black {
		return domain.Black
	}
	return domain.White
}
