package domain

import (
	"fmt"
	"strings"
	"time"
)

// Color is a side of the board as it appears on the wire.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool {
	return c == White || c == Black
}

// ParseColor accepts white/black/random (and w/b/r). Empty means random.
func ParseColor(s string) (Color, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, false, nil
	case "black", "b":
		return Black, false, nil
	case "", "random", "r":
		return "", true, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
}

// Difficulty selects an engine preset.
type Difficulty string

const (
	Easy       Difficulty = "easy"
	Medium     Difficulty = "medium"
	Hard       Difficulty = "hard"
	Impossible Difficulty = "impossible"
)

func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Easy, Medium, Hard, Impossible:
		return d, nil
	case "":
		return "", fmt.Errorf("%w: difficulty is required", ErrInvalidDifficulty)
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
}

// GameRecord is the persisted view of a bot game.
type GameRecord struct {
	GameID      string
	UserID      int64
	FEN         string
	PlayerColor Color
	Difficulty  Difficulty
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *GameRecord) Clone() *GameRecord {
	if r == nil {
		return nil
	}
	dup := *r
	return &dup
}

type User struct {
	UserID       int64
	RegisteredAt time.Time
}

// MatchResult is a finished live match handed to the archive.
type MatchResult struct {
	Code      string
	WhiteID   int64
	BlackID   int64
	Result    string
	Reason    string
	MovesSAN  []string
	FinalFEN  string
	ECO       string
	Opening   string
	StartedAt time.Time
	EndedAt   time.Time
}
