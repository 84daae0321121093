// Package ucitest provides a scripted UCI engine for tests.
package ucitest

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// NoMoveMarker makes the fake engine answer "bestmove (none)" when the
// position FEN starts with it.
const NoMoveMarker = "7k/"

const script = `#!/bin/sh
if [ -n "$FAKE_UCI_LOG" ]; then echo "start $$" >> "$FAKE_UCI_LOG"; fi
pos=""
while IFS= read -r line; do
  if [ -n "$FAKE_UCI_LOG" ]; then echo "$line" >> "$FAKE_UCI_LOG"; fi
  case "$line" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    "position "*) pos="$line" ;;
    go*)
      case "$pos" in
        "position fen __MARKER__"*) echo "bestmove (none)" ;;
        *" w "*|"position startpos") echo "info depth 3 score cp 21 pv __WHITE__"; echo "bestmove __WHITE__" ;;
        *) echo "info depth 3 score cp -18 pv __BLACK__"; echo "bestmove __BLACK__" ;;
      esac ;;
    quit) exit 0 ;;
  esac
done
`

// Path writes the fake engine to a temp dir and returns its path. The engine
// plays whiteMove when white is to move and blackMove otherwise.
func Path(t testing.TB, whiteMove, blackMove string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires /bin/sh")
	}
	body := strings.NewReplacer(
		"__MARKER__", NoMoveMarker,
		"__WHITE__", whiteMove,
		"__BLACK__", blackMove,
	).Replace(script)
	path := filepath.Join(t.TempDir(), "fake-uci")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

// LogPath enables command logging for engines started by this test and
// returns the log file path.
func LogPath(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uci.log")
	t.Setenv("FAKE_UCI_LOG", path)
	return path
}

// Starts counts engine processes recorded in the log.
func Starts(t testing.TB, logPath string) int {
	t.Helper()
	return countPrefix(t, logPath, "start ")
}

// Lines returns every logged command with the given prefix.
func Lines(t testing.TB, logPath, prefix string) []string {
	t.Helper()
	raw, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read engine log: %v", err)
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, prefix) {
			out = append(out, line)
		}
	}
	return out
}

func countPrefix(t testing.TB, logPath, prefix string) int {
	return len(Lines(t, logPath, prefix))
}
