package chessdto

// Live message types. Client to server: join, move, resign.
const (
	LiveJoin         = "join"
	LiveMove         = "move"
	LiveResign       = "resign"
	LiveJoined       = "joined"
	LiveStart        = "start"
	LiveError        = "error"
	LiveOpponentLeft = "opponent_left"
	LiveGameOver     = "game_over"
)

// LiveMessage is the single envelope used in both directions on the live
// WebSocket. Only the fields relevant to Type are set.
type LiveMessage struct {
	Type     string `json:"type"`
	Code     string `json:"code,omitempty"`
	Color    string `json:"color,omitempty"`
	FEN      string `json:"fen,omitempty"`
	Turn     string `json:"turn,omitempty"`
	LastMove string `json:"last_move,omitempty"`
	Message  string `json:"message,omitempty"`
	Result   string `json:"result,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Text     string `json:"text,omitempty"`
	Move     string `json:"move,omitempty"`
}

// MoveText returns the move of a client move message; "move" is accepted
// as an alias of "text".
func (m LiveMessage) MoveText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Move
}
