package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/park285/cheese-chess-server/internal/botsession"
	"github.com/park285/cheese-chess-server/internal/chess"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/store/memstore"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type firstMoveEngine struct {
	mu    sync.Mutex
	fail  bool
	reply string
}

func (e *firstMoveEngine) BestMove(_ context.Context, _ string, fen string, _ domain.Difficulty) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return "", errors.New("engine down")
	}
	if e.reply != "" {
		mv := e.reply
		e.reply = ""
		return mv, nil
	}
	g, err := chess.NewGame(fen)
	if err != nil {
		return "", err
	}
	return g.Position().ValidMoves()[0].String(), nil
}

func (e *firstMoveEngine) Release(string) {}

func (e *firstMoveEngine) setReply(mv string) {
	e.mu.Lock()
	e.reply = mv
	e.mu.Unlock()
}

func (e *firstMoveEngine) setFail(v bool) {
	e.mu.Lock()
	e.fail = v
	e.mu.Unlock()
}

type fixture struct {
	srv    *httptest.Server
	engine *firstMoveEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	eng := &firstMoveEngine{}
	mgr := botsession.NewManager(st, eng, zap.NewNop())
	api := New(Config{Bot: mgr, Users: st, Logger: zap.NewNop()})
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, engine: eng}
}

func (f *fixture) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) get(t *testing.T, path string, out any) (int, http.Header) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode, resp.Header
}

func TestStartWhiteEasy(t *testing.T) {
	f := newFixture(t)
	var res chessdto.StartResponse
	status := f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 1, Difficulty: "easy", Color: "white"}, &res)

	require.Equal(t, http.StatusOK, status)
	assert.True(t, res.Success)
	assert.Equal(t, "Game started vs bot (easy)", res.Message)
	assert.Equal(t, "white", res.PlayerColor)
	assert.Equal(t, "white", res.Turn)
	assert.Nil(t, res.BotMove)
	assert.Equal(t, chess.StartFEN, res.FEN)
	assert.NotEmpty(t, res.GameID)
}

func TestStartBlackHasBotMove(t *testing.T) {
	f := newFixture(t)
	var res chessdto.StartResponse
	status := f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 1, Difficulty: "hard", Color: "black"}, &res)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, res.BotMove)
	assert.NotEmpty(t, *res.BotMove)
	assert.Equal(t, "black", res.PlayerColor)
}

func TestMoveFlowAndErrors(t *testing.T) {
	f := newFixture(t)
	var start chessdto.StartResponse
	f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 2, Difficulty: "easy", Color: "white"}, &start)

	var moved chessdto.MoveResponse
	status := f.post(t, "/chess/bot/move", chessdto.MoveRequest{GameID: start.GameID, Move: "e4"}, &moved)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, moved.GameOver)
	require.NotNil(t, moved.BotMove)
	assert.Equal(t, "white", moved.Turn)

	var bad chessdto.ErrorResponse
	status = f.post(t, "/chess/bot/move", chessdto.MoveRequest{GameID: start.GameID, Move: "???"}, &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_move_format", bad.Error.Code)
	assert.Equal(t, "Invalid move format", bad.Error.Message)
	assert.True(t, bad.Error.Retryable)

	var missing chessdto.ErrorResponse
	status = f.post(t, "/chess/bot/move", chessdto.MoveRequest{GameID: "nope00", Move: "e4"}, &missing)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "game_not_found", missing.Error.Code)
}

func TestEngineFailureThenResume(t *testing.T) {
	f := newFixture(t)
	var start chessdto.StartResponse
	f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 3, Difficulty: "easy", Color: "white"}, &start)

	f.engine.setFail(true)
	var failed chessdto.ErrorResponse
	status := f.post(t, "/chess/bot/move", chessdto.MoveRequest{GameID: start.GameID, Move: "d4"}, &failed)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "engine_failure", failed.Error.Code)

	f.engine.setFail(false)
	var resumed chessdto.MoveResponse
	status = f.post(t, "/chess/bot/resume", chessdto.ResumeRequest{GameID: start.GameID}, &resumed)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resumed.BotMove)
	assert.Equal(t, "white", resumed.Turn)
}

func TestUnplayableEngineReplyIsBadGateway(t *testing.T) {
	f := newFixture(t)
	var start chessdto.StartResponse
	f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 4, Difficulty: "medium", Color: "white"}, &start)

	f.engine.setReply("zz")
	var failed chessdto.ErrorResponse
	status := f.post(t, "/chess/bot/move", chessdto.MoveRequest{GameID: start.GameID, Move: "e4"}, &failed)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "engine_failure", failed.Error.Code)
	assert.True(t, failed.Error.Retryable)

	var again chessdto.ErrorResponse
	status = f.post(t, "/chess/bot/move", chessdto.MoveRequest{GameID: start.GameID, Move: "e4"}, &again)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "illegal_move", again.Error.Code)

	var resumed chessdto.MoveResponse
	status = f.post(t, "/chess/bot/resume", chessdto.ResumeRequest{GameID: start.GameID}, &resumed)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resumed.BotMove)
	assert.Equal(t, "white", resumed.Turn)
}

func TestBlackStartEngineFailureReportsGameID(t *testing.T) {
	f := newFixture(t)
	f.engine.setFail(true)

	var failed chessdto.ErrorResponse
	status := f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 5, Difficulty: "easy", Color: "black"}, &failed)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "engine_failure", failed.Error.Code)
	require.NotEmpty(t, failed.Error.GameID)

	var loaded chessdto.LoadResponse
	require.Equal(t, http.StatusOK, f.post(t, "/chess/bot/load", chessdto.LoadRequest{GameID: failed.Error.GameID}, &loaded))
	assert.Equal(t, chess.StartFEN, loaded.FEN)
	assert.Equal(t, "black", loaded.PlayerColor)

	f.engine.setFail(false)
	var resumed chessdto.MoveResponse
	status = f.post(t, "/chess/bot/resume", chessdto.ResumeRequest{GameID: failed.Error.GameID}, &resumed)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resumed.BotMove)
	assert.Equal(t, "black", resumed.Turn)
}

func TestActiveAndLoad(t *testing.T) {
	f := newFixture(t)
	var start chessdto.StartResponse
	f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 4, Difficulty: "impossible", Color: "white"}, &start)

	var list []chessdto.ActiveGame
	status, _ := f.get(t, "/chess/bot/active?user_id=4", &list)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, start.GameID, list[0].GameID)
	assert.Equal(t, "impossible", list[0].Difficulty)

	var loaded chessdto.LoadResponse
	status = f.post(t, "/chess/bot/load", chessdto.LoadRequest{GameID: start.GameID}, &loaded)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, start.FEN, loaded.FEN)
	assert.Equal(t, "white", loaded.PlayerColor)

	var bad chessdto.ErrorResponse
	status, _ = f.get(t, "/chess/bot/active?user_id=abc", &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", bad.Error.Code)
}

func TestBadInput(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Post(f.srv.URL+"/chess/bot/start", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var bad chessdto.ErrorResponse
	status := f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 1, Difficulty: "nightmare"}, &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_difficulty", bad.Error.Code)

	status = f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 1, Color: "white"}, &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_difficulty", bad.Error.Code)

	status = f.post(t, "/chess/bot/start", chessdto.StartRequest{UserID: 1, Difficulty: "easy", Color: "green"}, &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_color", bad.Error.Code)
}

func TestCheckUser(t *testing.T) {
	f := newFixture(t)
	var first, second chessdto.CheckUserResponse
	require.Equal(t, http.StatusOK, f.post(t, "/users/check", chessdto.CheckUserRequest{UserID: 77}, &first))
	require.Equal(t, http.StatusOK, f.post(t, "/users/check", chessdto.CheckUserRequest{UserID: 77}, &second))
	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.True(t, first.RegisteredAt.Equal(second.RegisteredAt))
}

func TestBoardAndHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/chess/board.png?flip=true&size=24")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var health map[string]string
	status, hdr := f.get(t, "/healthz", &health)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, hdr.Get(RequestIDHeader))
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		domain.ErrIllegalMove:   http.StatusBadRequest,
		domain.ErrNotYourTurn:   http.StatusBadRequest,
		domain.ErrRoomNotFound:  http.StatusNotFound,
		domain.ErrRoomFull:      http.StatusConflict,
		domain.ErrEngineFailure: http.StatusBadGateway,
		errors.New("x"):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}

	wrapped := fmt.Errorf("%w: engine returned %q: %w", domain.ErrEngineFailure, "zz", domain.ErrInvalidMoveFormat)
	assert.Equal(t, http.StatusBadGateway, statusFor(wrapped))
}
