package chessdto

import "time"

type StartRequest struct {
	UserID     int64  `json:"user_id"`
	Difficulty string `json:"difficulty,omitempty"`
	Color      string `json:"color,omitempty"`
}

type StartResponse struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	GameID      string  `json:"game_id"`
	FEN         string  `json:"fen"`
	Turn        string  `json:"turn"`
	PlayerColor string  `json:"player_color"`
	Difficulty  string  `json:"difficulty"`
	BotMove     *string `json:"bot_move"`
}

type MoveRequest struct {
	GameID string `json:"game_id"`
	Move   string `json:"move"`
}

type ResumeRequest struct {
	GameID string `json:"game_id"`
}

type MoveResponse struct {
	Success  bool    `json:"success"`
	FEN      string  `json:"fen"`
	Turn     string  `json:"turn"`
	BotMove  *string `json:"bot_move"`
	GameOver bool    `json:"game_over"`
	Result   string  `json:"result,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

type LoadRequest struct {
	GameID string `json:"game_id"`
}

type LoadResponse struct {
	Success     bool   `json:"success"`
	GameID      string `json:"game_id"`
	FEN         string `json:"fen"`
	Turn        string `json:"turn"`
	PlayerColor string `json:"player_color"`
	Difficulty  string `json:"difficulty"`
}

type ActiveGame struct {
	GameID      string    `json:"game_id"`
	FEN         string    `json:"fen"`
	PlayerColor string    `json:"player_color"`
	Difficulty  string    `json:"difficulty"`
	LastPlayed  time.Time `json:"last_played"`
}

type CheckUserRequest struct {
	UserID int64 `json:"user_id"`
}

type CheckUserResponse struct {
	Registered   bool      `json:"registered"`
	Created      bool      `json:"created"`
	RegisteredAt time.Time `json:"registered_at"`
}
