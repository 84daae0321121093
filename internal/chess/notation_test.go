package chess

import (
	"errors"
	"testing"

	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoveSANFirst(t *testing.T) {
	game, err := NewGame("")
	require.NoError(t, err)
	pos := game.Position()

	mv, err := ParseMove("e4", pos)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", EncodeUCI(pos, mv))

	mv, err = ParseMove("Nf3", pos)
	require.NoError(t, err)
	assert.Equal(t, "g1f3", EncodeUCI(pos, mv))
}

func TestParseMoveFallsBackToUCI(t *testing.T) {
	game, err := NewGame(StartFEN)
	require.NoError(t, err)
	pos := game.Position()

	mv, err := ParseMove("g1f3", pos)
	require.NoError(t, err)
	assert.Equal(t, "Nf3", EncodeSAN(pos, mv))

	mv, err = ParseMove(" E2E4 ", pos)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", EncodeUCI(pos, mv))
}

func TestParseMoveInvalidFormat(t *testing.T) {
	game, err := NewGame("")
	require.NoError(t, err)

	for _, text := range []string{"", "hello", "z9z9", "Qx"} {
		_, err := ParseMove(text, game.Position())
		assert.ErrorIs(t, err, domain.ErrInvalidMoveFormat, text)
	}
}

func TestValidateMoveRejectsMoveFromOtherPosition(t *testing.T) {
	game, err := NewGame("")
	require.NoError(t, err)
	start := game.Position()

	mv, err := ParseAndValidate("e4", start)
	require.NoError(t, err)
	require.NoError(t, game.Move(mv, nil))

	reply, err := ParseMove("e5", game.Position())
	require.NoError(t, err)
	assert.ErrorIs(t, ValidateMove(reply, start), domain.ErrIllegalMove)
	assert.NoError(t, ValidateMove(reply, game.Position()))
}

func TestParseAndValidateRejectsImpossibleCoordinateMove(t *testing.T) {
	game, err := NewGame("")
	require.NoError(t, err)

	_, err = ParseAndValidate("e2e5", game.Position())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIllegalMove) || errors.Is(err, domain.ErrInvalidMoveFormat), err.Error())
}

func TestParseDoesNotMutate(t *testing.T) {
	game, err := NewGame("")
	require.NoError(t, err)
	before := game.FEN()

	_, err = ParseAndValidate("d4", game.Position())
	require.NoError(t, err)
	assert.Equal(t, before, game.FEN())
}

func TestTurn(t *testing.T) {
	game, err := NewGame("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	require.NoError(t, err)
	assert.Equal(t, domain.Black, Turn(game.Position()))

	_, err = NewGame("not a fen")
	assert.Error(t, err)
}
