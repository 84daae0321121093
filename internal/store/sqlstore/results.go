package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-chess-server/internal/domain"
)

// SaveMatchResult appends a finished live match with its PGN.
func (s *Store) SaveMatchResult(ctx context.Context, res *domain.MatchResult) error {
	if res == nil {
		return nil
	}
	movesRaw, err := json.Marshal(res.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	q, args, err := s.sb.Insert("match_results").
		Columns("code", "white_id", "black_id", "result", "reason", "moves_san", "pgn", "final_fen", "started_at", "ended_at").
		Values(res.Code, res.WhiteID, res.BlackID, res.Result, res.Reason, string(movesRaw), BuildPGN(res), res.FinalFEN, res.StartedAt.UTC(), res.EndedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// BuildPGN renders a minimal PGN for an archived match.
func BuildPGN(res *domain.MatchResult) string {
	if res == nil {
		return ""
	}
	date := res.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := res.Result
	if result == "" {
		result = "*"
	}

	var b strings.Builder
	b.WriteString("[Event \"Live match\"]\n")
	fmt.Fprintf(&b, "[Site \"room %s\"]\n", sanitizePGN(res.Code))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%d\"]\n", res.WhiteID)
	fmt.Fprintf(&b, "[Black \"%d\"]\n", res.BlackID)
	if res.ECO != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", sanitizePGN(res.ECO))
	}
	if res.Opening != "" {
		fmt.Fprintf(&b, "[Opening \"%s\"]\n", sanitizePGN(res.Opening))
	}
	if res.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(res.Reason))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(res.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(res.MovesSAN[i]))
		if i+1 < len(res.MovesSAN) {
			b.WriteString(strings.TrimSpace(res.MovesSAN[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
