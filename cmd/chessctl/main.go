// Command chessctl drives a running chess server from the terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/cheese-chess-server/internal/apiclient"
	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

const usage = `usage: chessctl [flags] <command> [args]

commands:
  start <easy|medium|hard|impossible> [white|black|random]
  move <game_id> <move>
  resume <game_id>
  load <game_id>
  active
  board <fen> [out.png]
  live [code]     join or create a live room; type moves, "resign" or "quit"

flags:
`

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("CHESS_BASE_URL", "http://localhost:8080"), "server base URL")
	userID := flag.Int64("user", 0, "user id (or CHESS_USER_ID)")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *userID == 0 {
		fmt.Sscan(os.Getenv("CHESS_USER_ID"), userID)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := apiclient.NewClient(*baseURL, apiclient.WithTimeout(*timeout))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := strings.ToLower(args[0]), args[1:]
	var err error
	switch cmd {
	case "start":
		need(rest, 1)
		req := chessdto.StartRequest{UserID: requireUser(*userID), Difficulty: rest[0]}
		if len(rest) > 1 {
			req.Color = rest[1]
		}
		err = printResult(client.StartGame(ctx, req))
	case "move":
		need(rest, 2)
		err = printResult(client.Move(ctx, rest[0], strings.Join(rest[1:], " ")))
	case "resume":
		need(rest, 1)
		err = printResult(client.Resume(ctx, rest[0]))
	case "load":
		need(rest, 1)
		err = printResult(client.LoadGame(ctx, rest[0]))
	case "active":
		err = printResult(client.ActiveGames(ctx, requireUser(*userID)))
	case "board":
		need(rest, 1)
		err = board(ctx, client, rest)
	case "live":
		code := ""
		if len(rest) > 0 {
			code = rest[0]
		}
		err = live(ctx, *baseURL, requireUser(*userID), code)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func board(ctx context.Context, client *apiclient.Client, args []string) error {
	out := "board.png"
	if len(args) > 1 {
		out = args[1]
	}
	png, err := client.BoardPNG(ctx, args[0], apiclient.BoardOptions{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(png))
	return nil
}

func live(ctx context.Context, baseURL string, userID int64, code string) error {
	wsURL, err := apiclient.LiveURL(baseURL, userID, "")
	if err != nil {
		return err
	}
	lc, err := apiclient.DialLive(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer lc.Close()
	if err := lc.Join(ctx, code); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-lc.Messages():
			if !ok {
				return lc.Err()
			}
			printLive(msg)
			if msg.Type == chessdto.LiveGameOver {
				return nil
			}
		case line, ok := <-lines:
			if !ok || line == "quit" {
				return nil
			}
			switch line {
			case "":
			case "resign":
				err = lc.Resign(ctx)
			default:
				err = lc.Move(ctx, line)
			}
			if err != nil {
				return err
			}
		}
	}
}

func printLive(msg chessdto.LiveMessage) {
	switch msg.Type {
	case chessdto.LiveJoined:
		fmt.Printf("joined room %s as %s\n", msg.Code, msg.Color)
	case chessdto.LiveStart:
		fmt.Printf("game started, %s to move\n", msg.Turn)
	case chessdto.LiveMove:
		fmt.Printf("%s  (%s to move)\n%s\n", msg.LastMove, msg.Turn, msg.FEN)
	case chessdto.LiveError:
		fmt.Printf("error: %s\n", msg.Message)
	case chessdto.LiveOpponentLeft:
		fmt.Println("opponent left")
	case chessdto.LiveGameOver:
		fmt.Printf("game over: %s (%s)\n", msg.Result, msg.Reason)
	default:
		fmt.Printf("%+v\n", msg)
	}
}

func printResult[T any](v T, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func need(args []string, n int) {
	if len(args) < n {
		flag.Usage()
		os.Exit(2)
	}
}

func requireUser(id int64) int64 {
	if id <= 0 {
		log.Fatal("user id is required (-user or CHESS_USER_ID)")
	}
	return id
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
