package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-chess-server/pkg/chessdto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const livePath = "/chess/live/ws"

// LiveURL turns an http(s) base URL into the live WebSocket endpoint.
func LiveURL(baseURL string, userID int64, code string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += livePath
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(userID, 10))
	if code != "" {
		q.Set("code", code)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LiveConn is one player's connection to a live room.
type LiveConn struct {
	conn *websocket.Conn
	msgs chan chessdto.LiveMessage

	rootCtx    context.Context
	rootCancel context.CancelFunc

	pingInterval time.Duration
	wg           sync.WaitGroup
	closeOnce    sync.Once

	mu      sync.Mutex
	readErr error
}

// DialLive connects to wsURL. Incoming messages are delivered on
// Messages until the connection ends.
func DialLive(ctx context.Context, wsURL string, headers HeaderProvider) (*LiveConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      buildHeaders(headers),
	})
	if err != nil {
		return nil, fmt.Errorf("dial live: %w", err)
	}

	lc := &LiveConn{
		conn:         conn,
		msgs:         make(chan chessdto.LiveMessage, 16),
		pingInterval: 30 * time.Second,
	}
	lc.rootCtx, lc.rootCancel = context.WithCancel(context.Background())
	lc.wg.Add(2)
	go lc.listen()
	go lc.pingLoop()
	return lc, nil
}

func buildHeaders(h HeaderProvider) http.Header {
	out := http.Header{}
	if h == nil {
		return out
	}
	for k, v := range h() {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			out.Set(k, v)
		}
	}
	return out
}

func (lc *LiveConn) Messages() <-chan chessdto.LiveMessage { return lc.msgs }

// Err reports why the message stream ended, once Messages is closed.
func (lc *LiveConn) Err() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.readErr
}

func (lc *LiveConn) Send(ctx context.Context, msg chessdto.LiveMessage) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, lc.conn, msg)
}

func (lc *LiveConn) Join(ctx context.Context, code string) error {
	return lc.Send(ctx, chessdto.LiveMessage{Type: chessdto.LiveJoin, Code: code})
}

func (lc *LiveConn) Move(ctx context.Context, text string) error {
	return lc.Send(ctx, chessdto.LiveMessage{Type: chessdto.LiveMove, Text: text})
}

func (lc *LiveConn) Resign(ctx context.Context) error {
	return lc.Send(ctx, chessdto.LiveMessage{Type: chessdto.LiveResign})
}

func (lc *LiveConn) listen() {
	defer lc.wg.Done()
	defer close(lc.msgs)
	for {
		var msg chessdto.LiveMessage
		if err := wsjson.Read(lc.rootCtx, lc.conn, &msg); err != nil {
			lc.mu.Lock()
			lc.readErr = err
			lc.mu.Unlock()
			lc.rootCancel()
			return
		}
		select {
		case lc.msgs <- msg:
		case <-lc.rootCtx.Done():
			return
		}
	}
}

func (lc *LiveConn) pingLoop() {
	defer lc.wg.Done()
	t := time.NewTicker(lc.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-lc.rootCtx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(lc.rootCtx, 3*time.Second)
			err := lc.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = lc.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (lc *LiveConn) Close() error {
	var err error
	lc.closeOnce.Do(func() {
		err = lc.conn.Close(websocket.StatusNormalClosure, "bye")
		lc.rootCancel()
		lc.wg.Wait()
	})
	return err
}
