package sqlstore

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/park285/cheese-chess-server/internal/domain"
)

func (s *Store) EnsureUser(ctx context.Context, userID int64) (*domain.User, bool, error) {
	q, args, err := s.sb.Insert("users").
		Columns("user_id", "registered_at").
		Values(userID, s.now().UTC()).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	n, _ := res.RowsAffected()

	q, args, err = s.sb.Select("user_id", "registered_at").From("users").Where(squirrel.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, false, err
	}
	var u domain.User
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&u.UserID, &u.RegisteredAt); err != nil {
		return nil, false, fmt.Errorf("select user: %w", err)
	}
	return &u, n == 1, nil
}
