package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/store"
)

var gameColumns = []string{
	"game_id", "user_id", "fen", "player_color", "difficulty", "is_active", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.GameRecord, error) {
	var (
		rec        domain.GameRecord
		color      string
		difficulty string
	)
	if err := row.Scan(&rec.GameID, &rec.UserID, &rec.FEN, &color, &difficulty, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.PlayerColor = domain.Color(color)
	rec.Difficulty = domain.Difficulty(difficulty)
	return &rec, nil
}

func (s *Store) CreateGame(ctx context.Context, userID int64, fen string, color domain.Color, difficulty domain.Difficulty) (*domain.GameRecord, error) {
	id, err := store.AllocateGameID(ctx, s.gameIDTaken)
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

	q, args, err := s.sb.Insert("chess_games").
		Columns(gameColumns...).
		Values(rec.GameID, rec.UserID, rec.FEN, string(rec.PlayerColor), string(rec.Difficulty), rec.IsActive, rec.CreatedAt, rec.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("insert chess game: %w", err)
	}
	return rec, nil
}

func (s *Store) gameIDTaken(ctx context.Context, id string) (bool, error) {
	q, args, err := s.sb.Select("COUNT(*)").From("chess_games").Where(squirrel.Eq{"game_id": id}).ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check game id: %w", err)
	}
	return n > 0, nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*domain.GameRecord, error) {
	q, args, err := s.sb.Select(gameColumns...).From("chess_games").Where(squirrel.Eq{"game_id": gameID}).ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanGame(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select chess game: %w", err)
	}
	return rec, nil
}

func (s *Store) GetActiveGames(ctx context.Context, userID int64) ([]*domain.GameRecord, error) {
	q, args, err := s.sb.Select(gameColumns...).
		From("chess_games").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		OrderBy("updated_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select active games: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.GameRecord, 0)
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chess game: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) UpdateFEN(ctx context.Context, gameID, fen string) error {
	return s.updateGame(ctx, gameID, "update fen", squirrel.Eq{"fen": fen})
}

func (s *Store) Deactivate(ctx context.Context, gameID string) error {
	return s.updateGame(ctx, gameID, "deactivate", squirrel.Eq{"is_active": false})
}

func (s *Store) updateGame(ctx context.Context, gameID, op string, set squirrel.Eq) error {
	b := s.sb.Update("chess_games").Set("updated_at", s.now().UTC()).Where(squirrel.Eq{"game_id": gameID})
	for col, v := range set {
		b = b.Set(col, v)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrGameNotFound)
	}
	return nil
}
