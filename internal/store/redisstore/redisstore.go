// Package redisstore keeps bot games, users and match results in Redis.
// It also reserves live room codes so several processes sharing one Redis
// never hand out the same code.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	maxWatchRetries = 5
	resultsCap      = 1000
	DefaultCodeTTL  = 24 * time.Hour
)

type Store struct {
	rdb     *redis.Client
	logger  *zap.Logger
	codeTTL time.Duration
	now     func() time.Time
}

var (
	_ store.GameStore     = (*Store)(nil)
	_ store.UserStore     = (*Store)(nil)
	_ store.ResultArchive = (*Store)(nil)
)

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, redisURL string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, logger), nil
}

func New(rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = obslog.L()
	}
	return &Store{rdb: rdb, logger: logger, codeTTL: DefaultCodeTTL, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// ParseURL accepts redis:// and rediss:// with an optional /<db> path.
func ParseURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func gameKey(id string) string       { return "chess:game:" + strings.TrimSpace(id) }
func idxUserKey(userID int64) string { return "chess:index:user:" + strconv.FormatInt(userID, 10) }
func userKey(userID int64) string    { return "chess:user:" + strconv.FormatInt(userID, 10) }
func codeKey(code string) string     { return "chess:room:" + strings.TrimSpace(code) }
func resultsKey() string             { return "chess:results" }

type gameRecord struct {
	GameID      string    `json:"game_id"`
	UserID      int64     `json:"user_id"`
	FEN         string    `json:"fen"`
	PlayerColor string    `json:"player_color"`
	Difficulty  string    `json:"difficulty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toRecord(r *domain.GameRecord) gameRecord {
	return gameRecord{
		GameID:      r.GameID,
		UserID:      r.UserID,
		FEN:         r.FEN,
		PlayerColor: string(r.PlayerColor),
		Difficulty:  string(r.Difficulty),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (g gameRecord) domain() *domain.GameRecord {
	return &domain.GameRecord{
		GameID:      g.GameID,
		UserID:      g.UserID,
		FEN:         g.FEN,
		PlayerColor: domain.Color(g.PlayerColor),
		Difficulty:  domain.Difficulty(g.Difficulty),
		IsActive:    g.IsActive,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func (s *Store) CreateGame(ctx context.Context, userID int64, fen string, color domain.Color, difficulty domain.Difficulty) (*domain.GameRecord, error) {
	now := s.now().UTC()
	rec := &domain.GameRecord{
		UserID:      userID,
		FEN:         fen,
		PlayerColor: color,
		Difficulty:  difficulty,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// SETNX claims the id and writes the record in one step.
	id, err := store.AllocateGameID(ctx, func(ctx context.Context, id string) (bool, error) {
		rec.GameID = id
		raw, err := json.Marshal(toRecord(rec))
		if err != nil {
			return false, err
		}
		ok, err := s.rdb.SetNX(ctx, gameKey(id), raw, 0).Result()
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
	if err != nil {
		return nil, err
	}
	rec.GameID = id

	if err := s.rdb.SAdd(ctx, idxUserKey(userID), id).Err(); err != nil {
		return nil, fmt.Errorf("index game: %w", err)
	}
	s.logger.Debug("redis_game_create", zap.String("game_id", id), zap.Int64("user_id", userID))
	return rec, nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*domain.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g gameRecord
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", gameID, err)
	}
	return g.domain(), nil
}

func (s *Store) GetActiveGames(ctx context.Context, userID int64) ([]*domain.GameRecord, error) {
	ids, err := s.rdb.SMembers(ctx, idxUserKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.GameRecord, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGame(ctx, id)
		if err != nil {
			return nil, err
		}
		if g == nil || !g.IsActive {
			continue
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) UpdateFEN(ctx context.Context, gameID, fen string) error {
	return s.mutate(ctx, gameID, "update fen", func(g *gameRecord) { g.FEN = fen })
}

func (s *Store) Deactivate(ctx context.Context, gameID string) error {
	var userID int64
	if err := s.mutate(ctx, gameID, "deactivate", func(g *gameRecord) {
		g.IsActive = false
		userID = g.UserID
	}); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, idxUserKey(userID), gameID).Err()
}

// mutate applies fn to the stored record under WATCH, retrying on conflict.
func (s *Store) mutate(ctx context.Context, gameID, op string, fn func(*gameRecord)) error {
	key := gameKey(gameID)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", op, domain.ErrGameNotFound)
		}
		if err != nil {
			return err
		}
		var g gameRecord
		if err := json.Unmarshal(raw, &g); err != nil {
			return fmt.Errorf("decode game %s: %w", gameID, err)
		}
		fn(&g)
		g.UpdatedAt = s.now().UTC()
		next, err := json.Marshal(g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%s: too many concurrent updates on %s", op, gameID)
}

type userRecord struct {
	UserID       int64     `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (s *Store) EnsureUser(ctx context.Context, userID int64) (*domain.User, bool, error) {
	rec := userRecord{UserID: userID, RegisteredAt: s.now().UTC()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, err
	}
	created, err := s.rdb.SetNX(ctx, userKey(userID), raw, 0).Result()
	if err != nil {
		return nil, false, err
	}
	if created {
		return &domain.User{UserID: rec.UserID, RegisteredAt: rec.RegisteredAt}, true, nil
	}

	stored, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(stored, &rec); err != nil {
		return nil, false, fmt.Errorf("decode user %d: %w", userID, err)
	}
	return &domain.User{UserID: rec.UserID, RegisteredAt: rec.RegisteredAt}, false, nil
}

// SaveMatchResult pushes the result onto a capped list, newest first.
func (s *Store) SaveMatchResult(ctx context.Context, res *domain.MatchResult) error {
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, resultsKey(), raw)
		p.LTrim(ctx, resultsKey(), 0, resultsCap-1)
		return nil
	})
	return err
}

// RecentResults returns up to n archived matches, newest first.
func (s *Store) RecentResults(ctx context.Context, n int) ([]*domain.MatchResult, error) {
	if n <= 0 {
		return nil, nil
	}
	raws, err := s.rdb.LRange(ctx, resultsKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MatchResult, 0, len(raws))
	for _, raw := range raws {
		var r domain.MatchResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			s.logger.Warn("redis_result_decode_error", zap.Error(err))
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// Reserve claims a room code. It reports false when another holder has it.
func (s *Store) Reserve(ctx context.Context, code string) (bool, error) {
	return s.rdb.SetNX(ctx, codeKey(code), s.now().UTC().Format(time.RFC3339), s.codeTTL).Result()
}

func (s *Store) Release(ctx context.Context, code string) error {
	return s.rdb.Del(ctx, codeKey(code)).Err()
}
