// Package livews serves live matches over WebSocket. Each connection has
// one reader goroutine that dispatches into the room registry and one
// writer goroutine that drains the outbound queue in order.
package livews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-server/internal/domain"
	"github.com/park285/cheese-chess-server/internal/match"
	"github.com/park285/cheese-chess-server/internal/msgcat"
	"github.com/park285/cheese-chess-server/internal/obslog"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	DefaultOutboundBuffer = 32
	defaultPingInterval   = 30 * time.Second
	writeTimeout          = 5 * time.Second
	readLimitBytes        = 4 << 10
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("outbound queue full")
)

// Rooms is the registry surface used by connections.
type Rooms interface {
	Join(ctx context.Context, userID int64, ch match.Channel, code string) (*match.JoinResult, error)
	SubmitMove(ctx context.Context, userID int64, code, text string) error
	Resign(ctx context.Context, userID int64, code string) error
	Disconnect(ctx context.Context, userID int64, code string, ch match.Channel)
}

type Options struct {
	OutboundBuffer int
	PingInterval   time.Duration
	// OriginPatterns is passed to websocket.AcceptOptions.
	OriginPatterns []string
	Messages       *msgcat.Catalog
	Logger         *zap.Logger
}

type Handler struct {
	rooms    Rooms
	opts     Options
	messages *msgcat.Catalog
	logger   *zap.Logger
}

func NewHandler(rooms Rooms, opts Options) *Handler {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = DefaultOutboundBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	h := &Handler{rooms: rooms, opts: opts, messages: opts.Messages, logger: opts.Logger}
	if h.messages == nil {
		h.messages = msgcat.MustDefault()
	}
	if h.logger == nil {
		h.logger = obslog.L()
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id must be a positive integer", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		h.logger.Warn("live_accept_failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	ws.SetReadLimit(readLimitBytes)

	c := &conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		out:    make(chan chessdto.LiveMessage, h.opts.OutboundBuffer),
		done:   make(chan struct{}),
	}
	c.logger = h.logger.With(zap.String("conn_id", c.id), zap.Int64("user_id", userID))
	c.logger.Info("live_connect")

	// The request context ends with ServeHTTP. Room calls outlive a dropped
	// socket, so they use a context detached from it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, h.opts.PingInterval)
	}()

	if code := strings.TrimSpace(q.Get("code")); code != "" || q.Has("create") {
		h.join(ctx, c, code)
	}
	h.readLoop(ctx, c)

	if code := c.room(); code != "" {
		h.rooms.Disconnect(ctx, userID, code, c)
	}
	c.close(websocket.StatusNormalClosure, "bye")
	cancel()
	wg.Wait()
	c.logger.Info("live_disconnect")
}

func (h *Handler) readLoop(ctx context.Context, c *conn) {
	for {
		var msg chessdto.LiveMessage
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				c.logger.Debug("live_read_end", zap.Error(err))
			}
			return
		}
		switch msg.Type {
		case chessdto.LiveJoin:
			h.join(ctx, c, strings.TrimSpace(msg.Code))
		case chessdto.LiveMove:
			code := c.room()
			if code == "" {
				h.reject(c, domain.ErrNotInRoom)
				continue
			}
			if err := h.rooms.SubmitMove(ctx, c.userID, code, msg.MoveText()); err != nil {
				h.reject(c, err)
			}
		case chessdto.LiveResign:
			code := c.room()
			if code == "" {
				h.reject(c, domain.ErrNotInRoom)
				continue
			}
			if err := h.rooms.Resign(ctx, c.userID, code); err != nil {
				h.reject(c, err)
			}
		default:
			h.reject(c, fmt.Errorf("%w: unknown message type %q", domain.ErrBadRequest, msg.Type))
		}
	}
}

// join moves c into code, leaving any room it was in before.
func (h *Handler) join(ctx context.Context, c *conn, code string) {
	if prev := c.room(); prev != "" && prev != code {
		h.rooms.Disconnect(ctx, c.userID, prev, c)
		c.setRoom("")
	}
	res, err := h.rooms.Join(ctx, c.userID, c, code)
	if err != nil {
		h.reject(c, err)
		return
	}
	c.setRoom(res.Code)
}

func (h *Handler) reject(c *conn, err error) {
	c.logger.Debug("live_reject", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
	_ = c.Send(chessdto.LiveMessage{Type: chessdto.LiveError, Message: h.messages.ErrorText(err)})
}

// conn is a match.Channel backed by a WebSocket.
type conn struct {
	id     string
	userID int64
	ws     *websocket.Conn
	logger *zap.Logger

	out       chan chessdto.LiveMessage
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	code string
}

// Send enqueues msg without blocking. A full queue closes the connection.
func (c *conn) Send(msg chessdto.LiveMessage) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.logger.Warn("live_slow_consumer", zap.String("type", msg.Type))
		c.close(websocket.StatusPolicyViolation, "slow consumer")
		return errSlowConsumer
	}
}

func (c *conn) writeLoop(ctx context.Context, pingEvery time.Duration) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, msg)
			cancel()
			if err != nil {
				c.logger.Debug("live_write_failed", zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *conn) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		// Close waits for the peer's handshake and Send may run under a
		// room lock.
		go func() { _ = c.ws.Close(status, reason) }()
	})
}

func (c *conn) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *conn) setRoom(code string) {
	c.mu.Lock()
	c.code = code
	c.mu.Unlock()
}
