package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

var (
	// ErrOutputClosed is returned by SendAudio once the connection is gone.
	ErrOutputClosed = errors.New("media: output closed")

	// ErrOutputFull is returned by SendAudio when the outbound buffer is full
	// and the frame was dropped.
	ErrOutputFull = errors.New("media: output buffer full")
)

// writer serialises outbound media frames onto the connection from a single
// goroutine. It implements session.Output.
type writer struct {
	conn    *websocket.Conn
	log     *slog.Logger
	timeout time.Duration

	frames chan string
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	streamSid string
}

func newWriter(conn *websocket.Conn, buffer int, timeout time.Duration, log *slog.Logger) *writer {
	return &writer{
		conn:    conn,
		log:     log,
		timeout: timeout,
		frames:  make(chan string, buffer),
		done:    make(chan struct{}),
	}
}

func (w *writer) setStreamSid(sid string) {
	w.mu.Lock()
	w.streamSid = sid
	w.mu.Unlock()
}

// SendAudio queues a base64 mu-law payload without blocking.
func (w *writer) SendAudio(payload string) error {
	select {
	case <-w.done:
		return ErrOutputClosed
	default:
	}
	select {
	case w.frames <- payload:
		return nil
	case <-w.done:
		return ErrOutputClosed
	default:
		return ErrOutputFull
	}
}

func (w *writer) run(ctx context.Context) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			w.close()
			return
		case p := <-w.frames:
			w.mu.Lock()
			sid := w.streamSid
			w.mu.Unlock()

			data, err := encodeMedia(sid, p)
			if err != nil {
				w.log.Error("encode media frame", "err", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, w.timeout)
			err = w.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				w.log.Debug("media write failed, stopping output", "err", err)
				w.close()
				return
			}
		}
	}
}

func (w *writer) close() {
	w.once.Do(func() { close(w.done) })
}
