// Package media terminates the telephony provider's media stream WebSocket
// and feeds it into a call session.
//
// The stream carries JSON text messages: a connected handshake, one start
// event with the stream and call identifiers, base64 mu-law media frames and
// a final stop event. Agent audio goes back as media messages on the same
// connection. When the session ends on its own (hang-up from the admin API)
// the connection is closed, which ends the call at the provider.
package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/phonebridge/internal/session"
)

// Handler defaults.
const (
	DefaultWriteBuffer  = 512
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadLimit    = 64 << 10
)

// Opener creates the session for a new call. out receives the agent audio.
type Opener interface {
	Open(ctx context.Context, callID string, out session.Output) (*session.Session, error)
}

// OpenerFunc adapts a function to [Opener].
type OpenerFunc func(ctx context.Context, callID string, out session.Output) (*session.Session, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, callID string, out session.Output) (*session.Session, error) {
	return f(ctx, callID, out)
}

// Handler is the http.Handler for the media stream endpoint.
type Handler struct {
	opener       Opener
	log          *slog.Logger
	origins      []string
	writeBuffer  int
	writeTimeout time.Duration
	readLimit    int64
}

// Option configures a [Handler].
type Option func(*Handler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithOriginPatterns allows cross-origin upgrades from hosts matching the
// given patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithWriteBuffer sets how many outbound frames may queue before new ones
// are dropped.
func WithWriteBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.writeBuffer = n
		}
	}
}

// WithWriteTimeout bounds a single outbound frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// NewHandler returns a media stream handler that opens sessions through opener.
func NewHandler(opener Opener, opts ...Option) *Handler {
	h := &Handler{
		opener:       opener,
		log:          slog.Default(),
		writeBuffer:  DefaultWriteBuffer,
		writeTimeout: DefaultWriteTimeout,
		readLimit:    DefaultReadLimit,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and runs the stream until either side ends it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("media stream upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	st := &stream{
		h:    h,
		conn: conn,
		log:  h.log.With("remote", r.RemoteAddr),
		out:  newWriter(conn, h.writeBuffer, h.writeTimeout, h.log),
	}
	go st.out.run(ctx)
	defer st.out.close()

	st.readLoop(ctx)
	st.finish()
}

// stream is the state of one media connection.
type stream struct {
	h    *Handler
	conn *websocket.Conn
	log  *slog.Logger
	out  *writer
	sess *session.Session
}

func (st *stream) readLoop(ctx context.Context) {
	for {
		typ, data, err := st.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				st.log.Debug("media stream closed", "status", status)
			} else if !errors.Is(err, context.Canceled) {
				st.log.Debug("media stream read ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			st.log.Debug("malformed media message ignored", "err", err)
			continue
		}
		if !st.dispatch(ctx, msg) {
			return
		}
	}
}

// dispatch handles one message. It returns false when the stream must stop.
func (st *stream) dispatch(ctx context.Context, msg inbound) bool {
	switch msg.Event {
	case EventConnected:
		st.log.Debug("media stream connected")
	case EventStart:
		return st.start(ctx, msg)
	case EventMedia:
		if st.sess == nil || msg.Media == nil {
			return true
		}
		if tr := msg.Media.Track; tr != "" && tr != "inbound" {
			return true
		}
		frame, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			st.log.Debug("undecodable media payload ignored", "err", err)
			return true
		}
		st.sess.OnAudioFrame(frame)
	case EventMark:
	case EventStop:
		if st.sess != nil {
			st.sess.OnEnd()
		}
	default:
		st.log.Debug("unknown media event ignored", "event", msg.Event)
	}
	return true
}

func (st *stream) start(ctx context.Context, msg inbound) bool {
	if st.sess != nil {
		st.log.Debug("duplicate start ignored")
		return true
	}
	info := msg.Start
	if info == nil {
		info = &startInfo{}
	}
	streamSid := info.StreamSid
	if streamSid == "" {
		streamSid = msg.StreamSid
	}
	callID := info.CallSid
	if callID == "" {
		callID = uuid.NewString()
	}
	if enc := info.MediaFormat.Encoding; enc != "" && enc != "audio/x-mulaw" {
		st.log.Warn("unexpected media encoding", "encoding", enc)
	}

	st.log = st.log.With("call_id", callID)
	st.out.setStreamSid(streamSid)

	sess, err := st.h.opener.Open(ctx, callID, st.out)
	if err != nil {
		st.log.Error("failed to open call session", "err", err)
		st.conn.Close(websocket.StatusTryAgainLater, "session unavailable")
		return false
	}
	st.sess = sess

	// Close the stream once the session ends by itself.
	go func() {
		select {
		case <-sess.Done():
			st.conn.Close(websocket.StatusNormalClosure, "call ended")
		case <-ctx.Done():
		}
	}()

	sess.OnStart(streamSid, info.prompt(), session.WithEcho(info.echo()))
	return true
}

// finish ends the call when the connection goes away without a stop event.
func (st *stream) finish() {
	if st.sess != nil {
		st.sess.OnEnd()
	}
}
