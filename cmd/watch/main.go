// Command watch follows a replay stream from the viewer and prints every
// frame's board to the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ghersi75/SnakeAI/logging"
)

// frame holds the replay fields the terminal needs.
type frame struct {
	Tick       int32  `json:"tick"`
	Score      int32  `json:"score"`
	Alive      bool   `json:"alive"`
	DeathCause string `json:"death_cause"`
	Board      string `json:"board"`
}

type summary struct {
	Frames int
	Last   frame
}

func main() {
	server := flag.String("server", "ws://127.0.0.1:8080", "Viewer base URL")
	runID := flag.String("run-id", "", "Run to watch")
	generation := flag.Int("generation", 0, "Generation")
	episode := flag.Int("episode", 0, "Episode")
	agent := flag.Int("agent", 0, "Agent")
	fps := flag.Int("fps", 10, "Frames per second requested from the viewer")
	readTimeout := flag.Duration("read-timeout", 30*time.Second, "Give up when no frame arrives for this long")
	flag.Parse()

	logger, err := logging.New(os.Stderr, "info", false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *runID == "" {
		logger.Error("-run-id is required")
		os.Exit(2)
	}

	u, err := replayURL(*server, *runID, *generation, *episode, *agent, *fps)
	if err != nil {
		logger.Error("bad server url", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := watch(ctx, u, os.Stdout, *readTimeout, logger)
	if err != nil {
		logger.Error("watch failed", "frames", sum.Frames, "error", err)
		os.Exit(1)
	}
	logger.Info("replay finished", "frames", sum.Frames, "score", sum.Last.Score, "death", sum.Last.DeathCause)
}

func replayURL(server, runID string, generation, episode, agent, fps int) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/replay"
	q := url.Values{}
	q.Set("run_id", runID)
	q.Set("generation", strconv.Itoa(generation))
	q.Set("episode", strconv.Itoa(episode))
	q.Set("agent", strconv.Itoa(agent))
	q.Set("fps", strconv.Itoa(fps))
	q.Set("board", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// watch prints frames until the server closes the stream normally.
func watch(ctx context.Context, u string, w io.Writer, readTimeout time.Duration, log *slog.Logger) (summary, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return summary{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	// Unblock the read when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	var sum summary
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return sum, nil
			}
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			return sum, fmt.Errorf("read error: %w", err)
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			log.Warn("failed to parse frame", "error", err)
			continue
		}
		sum.Frames++
		sum.Last = f
		fmt.Fprint(w, f.Board)
	}
}
