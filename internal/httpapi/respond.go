package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// RequestBody decodes a JSON body into T. Unknown fields are ignored.
func RequestBody[T any](r *http.Request) (T, error) {
	var req T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	return req, nil
}

func WriteOK(w http.ResponseWriter, r *http.Request, body any) {
	WriteResponse(w, r, http.StatusOK, body)
}

func WriteResponse(w http.ResponseWriter, r *http.Request, status int, body any) {
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if body == nil {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		loggerFrom(r.Context()).Error("http_response_marshal_failed", zap.Error(err))
		return
	}
	if _, err := w.Write(raw); err != nil {
		loggerFrom(r.Context()).Warn("http_response_write_failed", zap.Error(err))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEngineFailure):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrInvalidMoveFormat),
		errors.Is(err, domain.ErrIllegalMove),
		errors.Is(err, domain.ErrNotYourTurn),
		errors.Is(err, domain.ErrAwaitingOpponent),
		errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrInvalidColor):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGameNotFound),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrNotInRoom):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomFull):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := loggerFrom(r.Context())
	if status >= 500 {
		log.Error("http_request_failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Debug("http_request_rejected", zap.Int("status", status), zap.Error(err))
	}
	WriteResponse(w, r, status, chessdto.ErrorResponse{
		Success: false,
		Error: chessdto.DomainError{
			Code:      domain.ErrorCode(err),
			Message:   s.messages.ErrorText(err),
			Retryable: domain.Recoverable(err),
			GameID:    domain.GameIDOf(err),
		},
	})
}
