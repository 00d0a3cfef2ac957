package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 20 * time.Second
	pongWait   = 2 * pingPeriod
	maxFPS     = 120
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The viewer is a local tool; renderers may be served from anywhere.
	CheckOrigin: func(*http.Request) bool { return true },
}

func clampFPS(fps int) int {
	return max(1, min(fps, maxFPS))
}

// readControls forwards client control messages until the connection fails
// or done closes. It closes gone when the reader exits.
func readControls(conn *websocket.Conn, controls chan<- ReplayControl, done <-chan struct{}, gone chan<- struct{}, log *slog.Logger) {
	defer close(gone)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("replay reader stopped", "error", err)
			}
			return
		}
		var c ReplayControl
		if err := json.Unmarshal(data, &c); err != nil {
			log.Debug("ignoring replay control", "error", err)
			continue
		}
		select {
		case controls <- c:
		case <-done:
			return
		}
	}
}

// streamReplay writes frames at fps frames per second, honouring pause,
// resume and speed commands from the client. It sends a normal close once
// the last frame is out.
func streamReplay(ctx context.Context, conn *websocket.Conn, frames []Frame, fps int, log *slog.Logger) error {
	controls := make(chan ReplayControl, 8)
	done := make(chan struct{})
	defer close(done)
	gone := make(chan struct{})
	go readControls(conn, controls, done, gone, log)

	ticker := time.NewTicker(time.Second / time.Duration(clampFPS(fps)))
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	paused := false
	for next := 0; next < len(frames); {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gone:
			return nil
		case c := <-controls:
			switch c.Cmd {
			case "pause":
				paused = true
			case "resume":
				paused = false
			case "speed":
				ticker.Reset(time.Second / time.Duration(clampFPS(c.FPS)))
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-ticker.C:
			if paused {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frames[next]); err != nil {
				return err
			}
			next++
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of episode")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		return err
	}
	// Let the client acknowledge the close before the handler tears down.
	select {
	case <-gone:
	case <-time.After(writeWait):
	}
	return nil
}
