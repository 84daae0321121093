package chess

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-chess-server/internal/domain"
)

const ReasonResignation = "resignation"

// Outcome is the terminal state of a game, if any.
type Outcome struct {
	Terminal bool
	Result   string
	Reason   string
}

// CheckOutcome reports whether game has ended. Threefold repetition and the
// fifty-move rule are claimed on the spot, so they end the game too.
func CheckOutcome(game *nchess.Game) Outcome {
	if game == nil {
		return Outcome{}
	}
	if game.Outcome() == nchess.NoOutcome {
		for _, m := range game.EligibleDraws() {
			if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
				if err := game.Draw(m); err == nil {
					break
				}
			}
		}
	}
	if game.Outcome() == nchess.NoOutcome {
		return Outcome{}
	}
	return Outcome{
		Terminal: true,
		Result:   string(game.Outcome()),
		Reason:   reasonFromMethod(game.Method()),
	}
}

func reasonFromMethod(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_moves"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.SeventyFiveMoveRule:
		return "seventyfive_moves"
	case nchess.Resignation:
		return ReasonResignation
	}
	return strings.ToLower(m.String())
}

// ResignResult is the result string when loser resigns.
func ResignResult(loser domain.Color) string {
	if loser == domain.White {
		return string(nchess.BlackWon)
	}
	return string(nchess.WhiteWon)
}
