package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-chess-server/internal/livews"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartGameDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chess/bot/start", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		var req chessdto.StartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.UserID)
		assert.Equal(t, "hard", req.Difficulty)

		bot := "e7e5"
		writeJSON(w, http.StatusOK, chessdto.StartResponse{Success: true, GameID: "abc123", Turn: "white", PlayerColor: "black", BotMove: &bot})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHeaderProvider(func() map[string]string {
		return map[string]string{"X-Api-Key": "secret", "X-Empty": ""}
	}))
	resp, err := c.StartGame(context.Background(), chessdto.StartRequest{UserID: 42, Difficulty: "hard", Color: "black"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.GameID)
	require.NotNil(t, resp.BotMove)
	assert.Equal(t, "e7e5", *resp.BotMove)
}

func TestDomainErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusNotFound, chessdto.ErrorResponse{Error: chessdto.DomainError{Code: "game_not_found", Message: "Game not found"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.LoadGame(context.Background(), "nope00")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "game_not_found", apiErr.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetriesUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, chessdto.LoadResponse{Success: true, GameID: "g1", Turn: "white"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(3))
	resp, err := c.LoadGame(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "g1", resp.GameID)
	assert.Equal(t, int32(3), hits.Load())
}

func TestMoveIsSentOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(5))
	_, err := c.Move(context.Background(), "g1", "e4")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "down", apiErr.Message)
	assert.Equal(t, int32(1), hits.Load())
}

func TestActiveGamesAndBoard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chess/bot/active":
			assert.Equal(t, "7", r.URL.Query().Get("user_id"))
			writeJSON(w, http.StatusOK, []chessdto.ActiveGame{{GameID: "a"}, {GameID: "b"}})
		case "/chess/board.png":
			q := r.URL.Query()
			assert.Equal(t, "true", q.Get("flip"))
			assert.Equal(t, "e2e4", q.Get("last"))
			assert.Equal(t, "32", q.Get("size"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	games, err := c.ActiveGames(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, games, 2)

	png, err := c.BoardPNG(context.Background(), "8/8/8/8/8/8/8/8 w - - 0 1", BoardOptions{Flip: true, LastMove: "e2e4", Size: 32})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png)
}

func TestLiveURL(t *testing.T) {
	got, err := LiveURL("https://chess.example.com/", 5, "123456")
	require.NoError(t, err)
	assert.Equal(t, "wss://chess.example.com/chess/live/ws?code=123456&user_id=5", got)

	got, err = LiveURL("http://localhost:8080", 9, "")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/chess/live/ws?user_id=9", got)

	_, err = LiveURL("ftp://x", 1, "")
	assert.Error(t, err)
}

func nextLive(t *testing.T, lc *LiveConn) chessdto.LiveMessage {
	t.Helper()
	select {
	case msg, ok := <-lc.Messages():
		require.True(t, ok, "stream ended: %v", lc.Err())
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for live message")
		return chessdto.LiveMessage{}
	}
}

func TestLiveConnPlaysAgainstServer(t *testing.T) {
	reg := match.NewRegistry(match.WithLogger(zap.NewNop()))
	mux := http.NewServeMux()
	mux.Handle(livePath, livews.NewHandler(reg, livews.Options{Logger: zap.NewNop()}))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	ctx := context.Background()

	wsURL, err := LiveURL(srv.URL, 1, "")
	require.NoError(t, err)
	white, err := DialLive(ctx, wsURL, nil)
	require.NoError(t, err)
	defer white.Close()
	require.NoError(t, white.Join(ctx, ""))
	joined := nextLive(t, white)
	require.Equal(t, chessdto.LiveJoined, joined.Type)

	wsURL, err = LiveURL(srv.URL, 2, joined.Code)
	require.NoError(t, err)
	black, err := DialLive(ctx, wsURL, nil)
	require.NoError(t, err)
	defer black.Close()
	assert.Equal(t, "black", nextLive(t, black).Color)
	assert.Equal(t, chessdto.LiveStart, nextLive(t, black).Type)
	assert.Equal(t, chessdto.LiveStart, nextLive(t, white).Type)

	require.NoError(t, white.Resign(ctx))
	over := nextLive(t, black)
	assert.Equal(t, chessdto.LiveGameOver, over.Type)
	assert.Equal(t, "0-1", over.Result)
}
