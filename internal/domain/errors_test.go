package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("apply move: %w", ErrIllegalMove)
	assert.Equal(t, "illegal_move", ErrorCode(wrapped))
	assert.Equal(t, "engine_failure", ErrorCode(fmt.Errorf("%w: broken pipe", ErrEngineFailure)))
	assert.Equal(t, "internal", ErrorCode(fmt.Errorf("boom")))

	both := fmt.Errorf("%w: engine returned %q: %w", ErrEngineFailure, "zz", ErrInvalidMoveFormat)
	assert.Equal(t, "engine_failure", ErrorCode(both))
}

func TestGameErrorCarriesID(t *testing.T) {
	err := fmt.Errorf("start: %w", &GameError{GameID: "abc234", Err: fmt.Errorf("%w: timeout", ErrEngineFailure)})
	assert.Equal(t, "abc234", GameIDOf(err))
	assert.Equal(t, "engine_failure", ErrorCode(err))
	assert.ErrorIs(t, err, ErrEngineFailure)
	assert.Empty(t, GameIDOf(ErrEngineFailure))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(ErrNotYourTurn))
	assert.False(t, Recoverable(ErrRoomFull))
	assert.False(t, Recoverable(ErrGameNotFound))
}

func TestParseColor(t *testing.T) {
	c, random, err := ParseColor("Black")
	require.NoError(t, err)
	assert.Equal(t, Black, c)
	assert.False(t, random)

	_, random, err = ParseColor("")
	require.NoError(t, err)
	assert.True(t, random)

	_, _, err = ParseColor("purple")
	assert.ErrorIs(t, err, ErrInvalidColor)
	assert.Equal(t, White, Black.Opposite())
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" HARD ")
	require.NoError(t, err)
	assert.Equal(t, Hard, d)

	_, err = ParseDifficulty("grandmaster")
	assert.ErrorIs(t, err, ErrInvalidDifficulty)

	_, err = ParseDifficulty("  ")
	assert.ErrorIs(t, err, ErrInvalidDifficulty)
}
