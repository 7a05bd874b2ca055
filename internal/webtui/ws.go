package webtui

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/gorilla/websocket"
)

type controlMsg struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     sameOrigin,
}

// ServeWS upgrades the request and pipes the editor's pty through it until
// either side goes away.
func (t *Terminal) ServeWS(w http.ResponseWriter, r *http.Request, sess Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd, err := t.Command(sess)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("failed to start editor: "+err.Error()))
		return
	}
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: defaultCols, Rows: defaultRows})
	if err != nil {
		t.cfg.Logger.Warn("terminal start failed", slog.String("error", err.Error()))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("failed to start editor: "+err.Error()))
		return
	}
	t.cfg.Logger.Info("terminal session started", slog.Int("pid", cmd.Process.Pid))
	defer func() {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		t.cfg.Logger.Info("terminal session ended", slog.Int("pid", cmd.Process.Pid))
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errCh <- ptyToWS(ptmx, conn)
	}()
	go func() {
		defer wg.Done()
		errCh <- wsToPTY(ctx, conn, ptmx)
	}()

	select {
	case <-ctx.Done():
	case <-errCh:
	}
	cancel()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "editor closed"),
		time.Now().Add(time.Second))
	_ = conn.Close()
	_ = ptmx.Close()
	wg.Wait()
}

func ptyToWS(ptmx *os.File, conn *websocket.Conn) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func wsToPTY(ctx context.Context, conn *websocket.Conn, ptmx *os.File) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		// Control frames are JSON text; keystrokes are anything else.
		if mt == websocket.TextMessage && data[0] == '{' {
			if size, ok := parseResize(data); ok {
				_ = pty.Setsize(ptmx, size)
			}
			continue
		}
		if _, err := ptmx.Write(data); err != nil {
			return err
		}
	}
}

func parseResize(data []byte) (*pty.Winsize, bool) {
	var m controlMsg
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	if !strings.EqualFold(strings.TrimSpace(m.Type), "resize") {
		return nil, false
	}
	if m.Cols <= 0 || m.Rows <= 0 || m.Cols > 1000 || m.Rows > 1000 {
		return nil, false
	}
	return &pty.Winsize{Cols: uint16(m.Cols), Rows: uint16(m.Rows)}, true
}
