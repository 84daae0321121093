package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/park285/cheese-chess-server/internal/botsession"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/render"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteOK(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := RequestBody[chessdto.StartRequest](r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: user_id is required", domain.ErrBadRequest))
		return
	}
	difficulty, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.bot.StartGame(r.Context(), req.UserID, difficulty, req.Color)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	loggerFrom(r.Context()).Debug("bot_start_served", zap.String("game_id", res.GameID))

	WriteOK(w, r, chessdto.StartResponse{
		Success:     true,
		Message:     s.messages.Text("bot.started", map[string]any{"Difficulty": string(res.Difficulty)}, "Game started"),
		GameID:      res.GameID,
		FEN:         res.FEN,
		Turn:        string(res.Turn),
		PlayerColor: string(res.PlayerColor),
		Difficulty:  string(res.Difficulty),
		BotMove:     optional(res.BotMove),
	})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	req, err := RequestBody[chessdto.MoveRequest](r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.GameID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: game_id is required", domain.ErrBadRequest))
		return
	}
	res, err := s.bot.ApplyMove(r.Context(), req.GameID, req.Move)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteOK(w, r, moveResponse(res))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	req, err := RequestBody[chessdto.ResumeRequest](r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.bot.ResumeBotMove(r.Context(), req.GameID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteOK(w, r, moveResponse(res))
}

func moveResponse(res *botsession.MoveResult) chessdto.MoveResponse {
	return chessdto.MoveResponse{
		Success:  true,
		FEN:      res.FEN,
		Turn:     string(res.Turn),
		BotMove:  optional(res.BotMove),
		GameOver: res.GameOver,
		Result:   res.Result,
		Reason:   res.Reason,
	}
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	req, err := RequestBody[chessdto.LoadRequest](r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.bot.LoadGame(r.Context(), req.GameID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	WriteOK(w, r, chessdto.LoadResponse{
		Success:     true,
		GameID:      g.GameID,
		FEN:         g.FEN,
		Turn:        string(g.Turn),
		PlayerColor: string(g.PlayerColor),
		Difficulty:  string(g.Difficulty),
	})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: user_id must be a positive integer", domain.ErrBadRequest))
		return
	}
	games, err := s.bot.ListActiveGames(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]chessdto.ActiveGame, 0, len(games))
	for _, g := range games {
		out = append(out, chessdto.ActiveGame{
			GameID:      g.GameID,
			FEN:         g.FEN,
			PlayerColor: string(g.PlayerColor),
			Difficulty:  string(g.Difficulty),
			LastPlayed:  g.LastPlayed,
		})
	}
	WriteOK(w, r, out)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flip, _ := strconv.ParseBool(q.Get("flip"))
	size := 0
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: size must be an integer", domain.ErrBadRequest))
			return
		}
		size = n
	}

	png, err := s.renderer.RenderFEN(r.Context(), q.Get("fen"), render.Options{
		Flip:       flip,
		LastMove:   q.Get("last"),
		SquareSize: size,
	})
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		loggerFrom(r.Context()).Warn("board_write_failed", zap.Error(err))
	}
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	req, err := RequestBody[chessdto.CheckUserRequest](r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: user_id is required", domain.ErrBadRequest))
		return
	}
	if s.users == nil {
		s.writeError(w, r, fmt.Errorf("user store not configured"))
		return
	}
	u, created, err := s.users.EnsureUser(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if created {
		loggerFrom(r.Context()).Info("user_registered", zap.Int64("user_id", u.UserID))
	}
	WriteOK(w, r, chessdto.CheckUserResponse{
		Registered:   true,
		Created:      created,
		RegisteredAt: u.RegisteredAt,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
