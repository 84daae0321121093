package chessdto

// DomainError is the error body shared by the HTTP API and its client.
// GameID is set when the failed request still left a game behind.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	GameID    string `json:"game_id,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   DomainError `json:"error"`
}
