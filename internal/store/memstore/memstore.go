// Package memstore is an in-memory store used when no database is configured
// and in tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/store"
)

type Store struct {
	mu sync.RWMutex

	games       map[string]*domain.GameRecord
	gamesByUser map[int64][]string
	users       map[int64]*domain.User
	results     []*domain.MatchResult

	now func() time.Time
}

var (
	_ store.GameStore     = (*Store)(nil)
	_ store.UserStore     = (*Store)(nil)
	_ store.ResultArchive = (*Store)(nil)
)

func New() *Store {
	return &Store{
		games:       make(map[string]*domain.GameRecord),
		gamesByUser: make(map[int64][]string),
		users:       make(map[int64]*domain.User),
		now:         time.Now,
	}
}

func (s *Store) CreateGame(ctx context.Context, userID int64, fen string, color domain.Color, difficulty domain.Difficulty) (*domain.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := store.AllocateGameID(ctx, func(_ context.Context, id string) (bool, error) {
		_, exists := s.games[id]
		return exists, nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &domain.GameRecord{
		GameID:      id,
		UserID:      userID,
		FEN:         fen,
		PlayerColor: color,
		Difficulty:  difficulty,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.games[id] = rec
	s.gamesByUser[userID] = append(s.gamesByUser[userID], id)
	return rec.Clone(), nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*domain.GameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.games[gameID].Clone(), nil
}

// GetActiveGames lists active games, most recently updated first.
func (s *Store) GetActiveGames(ctx context.Context, userID int64) ([]*domain.GameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.GameRecord, 0)
	for _, id := range s.gamesByUser[userID] {
		if rec := s.games[id]; rec != nil && rec.IsActive {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) UpdateFEN(ctx context.Context, gameID, fen string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("update fen: %w", domain.ErrGameNotFound)
	}
	rec.FEN = fen
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) Deactivate(ctx context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("deactivate: %w", domain.ErrGameNotFound)
	}
	rec.IsActive = false
	rec.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) EnsureUser(ctx context.Context, userID int64) (*domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		dup := *u
		return &dup, false, nil
	}
	u := &domain.User{UserID: userID, RegisteredAt: s.now().UTC()}
	s.users[userID] = u
	dup := *u
	return &dup, true, nil
}

func (s *Store) SaveMatchResult(ctx context.Context, res *domain.MatchResult) error {
	if res == nil {
		return nil
	}
	dup := *res
	dup.MovesSAN = append([]string(nil), res.MovesSAN...)
	s.mu.Lock()
	s.results = append(s.results, &dup)
	s.mu.Unlock()
	return nil
}

// Results returns archived matches in insertion order.
func (s *Store) Results() []*domain.MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*domain.MatchResult(nil), s.results...)
}
