package chess

import (
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// ClassifyOpening names the deepest ECO opening matching the moves played
// in game. Both values are empty when nothing matches.
func ClassifyOpening(game *nchess.Game) (code, title string) {
	if game == nil {
		return "", ""
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if o := ecoBook.Find(moves); o != nil {
		return o.Code(), o.Title()
	}
	return "", ""
}
