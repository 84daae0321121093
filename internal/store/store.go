// Package store defines the persistence contracts for bot games, users and
// finished live matches.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/park285/cheese-chess-server/internal/domain"
)

const (
	GameIDLength      = 6
	gameIDAlphabet    = "abcdefghijkmnpqrstuvwxyz23456789"
	maxGameIDAttempts = 8
)

var ErrIDExhausted = errors.New("could not allocate unique game id")

// GameStore persists bot games. GetGame returns (nil, nil) for unknown ids.
type GameStore interface {
	CreateGame(ctx context.Context, userID int64, fen string, color domain.Color, difficulty domain.Difficulty) (*domain.GameRecord, error)
	GetGame(ctx context.Context, gameID string) (*domain.GameRecord, error)
	GetActiveGames(ctx context.Context, userID int64) ([]*domain.GameRecord, error)
	UpdateFEN(ctx context.Context, gameID, fen string) error
	Deactivate(ctx context.Context, gameID string) error
}

// UserStore registers users on first contact. created reports whether the
// call inserted the row.
type UserStore interface {
	EnsureUser(ctx context.Context, userID int64) (user *domain.User, created bool, err error)
}

// ResultArchive keeps finished live matches.
type ResultArchive interface {
	SaveMatchResult(ctx context.Context, res *domain.MatchResult) error
}

// NewGameID returns a random short id. Callers check it for collisions.
func NewGameID() (string, error) {
	b := make([]byte, GameIDLength)
	max := big.NewInt(int64(len(gameIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("game id: %w", err)
		}
		b[i] = gameIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// AllocateGameID draws ids until taken reports a free one.
func AllocateGameID(ctx context.Context, taken func(ctx context.Context, id string) (bool, error)) (string, error) {
	for i := 0; i < maxGameIDAttempts; i++ {
		id, err := NewGameID()
		if err != nil {
			return "", err
		}
		used, err := taken(ctx, id)
		if err != nil {
			return "", err
		}
		if !used {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}
