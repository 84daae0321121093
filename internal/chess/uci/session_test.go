package uci

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-chess-server/internal/chess/uci/ucitest"
)

func TestBuildGoTokensPrefersDepth(t *testing.T) {
	got, err := buildGoTokens(Limits{Depth: 8, MoveTimeMillis: 100})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if len(got) != 3 || got[1] != "depth" || got[2] != "8" {
		t.Fatalf("unexpected tokens: %v", got)
	}

	got, err = buildGoTokens(Limits{MoveTimeMillis: 1000})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if got[1] != "movetime" || got[2] != "1000" {
		t.Fatalf("unexpected tokens: %v", got)
	}

	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error without limits")
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand(""); got != "position startpos\n" {
		t.Fatalf("got %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := buildPositionCommand(fen); got != "position fen "+fen+"\n" {
		t.Fatalf("got %q", got)
	}
}

func TestParseInfo(t *testing.T) {
	var resp SearchResponse
	parseInfo("info depth 12 seldepth 15 score cp -34 nodes 100 pv e7e5 g1f3", &resp)
	if resp.Depth != 12 || resp.ScoreCP != -34 || resp.Mate != 0 {
		t.Fatalf("unexpected parse: %+v", resp)
	}
	parseInfo("info depth 13 score mate 3 pv d8h4", &resp)
	if resp.Mate != 3 || resp.Depth != 13 {
		t.Fatalf("unexpected mate parse: %+v", resp)
	}
}

func TestValidateOptions(t *testing.T) {
	if err := validateOptions(Options{SkillLevel: 21}); err == nil {
		t.Fatalf("expected skill range error")
	}
	if err := validateOptions(Options{SkillLevel: 20, HashMB: 16, Threads: 1}); err != nil {
		t.Fatalf("validateOptions: %v", err)
	}
}

func TestSessionSearch(t *testing.T) {
	bin := ucitest.Path(t, "e2e4", "e7e5")
	logPath := ucitest.LogPath(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := NewSession(ctx, bin, Options{SkillLevel: 10, HashMB: 16})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	resp, err := s.Search(ctx, SearchRequest{Limits: Limits{Depth: 4}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e2e4" || resp.Depth != 3 || resp.ScoreCP != 21 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	resp, err = s.Search(ctx, SearchRequest{
		FEN:    "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1",
		Limits: Limits{MoveTimeMillis: 100},
	})
	if err != nil {
		t.Fatalf("Search black: %v", err)
	}
	if resp.BestMove != "e7e5" {
		t.Fatalf("expected e7e5, got %q", resp.BestMove)
	}

	if got := ucitest.Lines(t, logPath, "setoption name Skill Level"); len(got) != 1 || got[0] != "setoption name Skill Level value 10" {
		t.Fatalf("skill option not sent: %v", got)
	}
	if got := ucitest.Lines(t, logPath, "go "); len(got) != 2 || got[0] != "go depth 4" || got[1] != "go movetime 100" {
		t.Fatalf("unexpected go commands: %v", got)
	}
}

func TestSessionSearchNoMove(t *testing.T) {
	bin := ucitest.Path(t, "e2e4", "e7e5")
	ctx := context.Background()
	s, err := NewSession(ctx, bin, Options{SkillLevel: 1})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	_, err = s.Search(ctx, SearchRequest{FEN: ucitest.NoMoveMarker + "8/8/8/8/8/8/K7 w - - 0 1", Limits: Limits{Depth: 1}})
	if !errors.Is(err, ErrNoMove) {
		t.Fatalf("expected ErrNoMove, got %v", err)
	}
}

func TestNewSessionMissingBinary(t *testing.T) {
	if _, err := NewSession(context.Background(), "/nonexistent/stockfish", Options{}); err == nil {
		t.Fatalf("expected start error")
	}
}
