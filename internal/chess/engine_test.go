package chess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-chess-server/internal/chess/uci"
	"github.com/park285/cheese-chess-server/internal/chess/uci/ucitest"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPresetTable(t *testing.T) {
	cases := []struct {
		d     domain.Difficulty
		skill int
		want  uci.Limits
	}{
		{domain.Easy, 1, uci.Limits{Depth: 8}},
		{domain.Medium, 10, uci.Limits{Depth: 12}},
		{domain.Hard, 15, uci.Limits{Depth: 18}},
		{domain.Impossible, 20, uci.Limits{MoveTimeMillis: 1000}},
	}
	for _, tc := range cases {
		p, err := GetPreset(tc.d)
		require.NoError(t, err)
		assert.Equal(t, tc.skill, p.SkillLevel, tc.d)
		limits, err := SearchLimits(p)
		require.NoError(t, err)
		assert.Equal(t, tc.want, limits, tc.d)
	}

	_, err := GetPreset("legendary")
	assert.ErrorIs(t, err, domain.ErrInvalidDifficulty)
	assert.Error(t, ValidatePreset(DifficultyPreset{Name: "x"}))
}

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	bin := ucitest.Path(t, "e2e4", "e7e5")
	logPath := ucitest.LogPath(t)
	eng, err := NewEngine(EngineConfig{BinaryPath: bin, Threads: 1, HashMB: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, logPath
}

func TestEngineReusesHandlePerGame(t *testing.T) {
	eng, logPath := newTestEngine(t)
	ctx := context.Background()

	mv, err := eng.BestMove(ctx, "g1", StartFEN, domain.Easy)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", mv)

	blackFEN := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	mv, err = eng.BestMove(ctx, "g1", blackFEN, domain.Easy)
	require.NoError(t, err)
	assert.Equal(t, "e7e5", mv)
	assert.Equal(t, 1, ucitest.Starts(t, logPath))

	_, err = eng.BestMove(ctx, "g2", StartFEN, domain.Impossible)
	require.NoError(t, err)
	assert.Equal(t, 2, ucitest.Starts(t, logPath))
	assert.Equal(t, 2, eng.ActiveHandles())

	assert.Equal(t, []string{"go depth 8", "go depth 8", "go movetime 1000"}, ucitest.Lines(t, logPath, "go "))
}

func TestEngineConcurrentFirstUseStartsOneProcess(t *testing.T) {
	eng, logPath := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.BestMove(ctx, "same", StartFEN, domain.Medium)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ucitest.Starts(t, logPath))
}

func TestEngineReleaseStopsProcess(t *testing.T) {
	eng, logPath := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.BestMove(ctx, "g1", StartFEN, domain.Easy)
	require.NoError(t, err)
	eng.Release("g1")
	assert.Equal(t, 0, eng.ActiveHandles())

	require.Eventually(t, func() bool {
		return len(ucitest.Lines(t, logPath, "quit")) == 1
	}, 2*time.Second, 20*time.Millisecond)

	eng.Release("unknown")
}

func TestEngineSweepStopsIdleProcesses(t *testing.T) {
	eng, logPath := newTestEngine(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return now }

	_, err := eng.BestMove(ctx, "g1", StartFEN, domain.Easy)
	require.NoError(t, err)
	now = now.Add(10 * time.Minute)
	_, err = eng.BestMove(ctx, "g2", StartFEN, domain.Easy)
	require.NoError(t, err)
	require.Equal(t, 2, eng.ActiveProcesses())

	assert.Equal(t, 1, eng.SweepIdle(5*time.Minute))
	assert.Equal(t, 1, eng.ActiveProcesses())
	assert.Equal(t, 2, eng.ActiveHandles())
	require.Eventually(t, func() bool {
		return len(ucitest.Lines(t, logPath, "quit")) == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Zero(t, eng.SweepIdle(5*time.Minute))

	_, err = eng.BestMove(ctx, "g1", StartFEN, domain.Easy)
	require.NoError(t, err)
	assert.Equal(t, 3, ucitest.Starts(t, logPath))
	assert.Equal(t, 2, eng.ActiveProcesses())
}

func TestEngineFailureDropsProcess(t *testing.T) {
	eng, logPath := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.BestMove(ctx, "g1", ucitest.NoMoveMarker+"8/8/8/8/8/8/K7 w - - 0 1", domain.Easy)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
	assert.True(t, errors.Is(err, uci.ErrNoMove))

	_, err = eng.BestMove(ctx, "g1", StartFEN, domain.Easy)
	require.NoError(t, err)
	assert.Equal(t, 2, ucitest.Starts(t, logPath))
}

func TestEngineStartFailure(t *testing.T) {
	eng, err := NewEngine(EngineConfig{BinaryPath: "/nonexistent/stockfish"}, zap.NewNop())
	require.NoError(t, err)

	_, err = eng.BestMove(context.Background(), "g1", StartFEN, domain.Easy)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)

	require.NoError(t, eng.Close())
	_, err = eng.BestMove(context.Background(), "g1", StartFEN, domain.Easy)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)

	_, err = NewEngine(EngineConfig{}, nil)
	assert.Error(t, err)
}
