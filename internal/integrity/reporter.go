package integrity

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Reporter ships violation records to the backend's proctoring socket in
// real time. Reporting is best-effort: connection loss or write failures
// are logged and never affect the exam flow.
type Reporter struct {
	url   string
	token string
	log   zerolog.Logger
}

// NewReporter creates a Reporter for the given websocket URL.
func NewReporter(url, token string, log zerolog.Logger) *Reporter {
	return &Reporter{
		url:   url,
		token: token,
		log:   log.With().Str("component", "violation_reporter").Logger(),
	}
}

// Run consumes the violation stream until ctx is cancelled or the stream
// closes. It reconnects with a fixed 5s delay after any socket failure.
func (r *Reporter) Run(ctx context.Context, violations <-chan Violation) {
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-violations:
			if !ok {
				return
			}
			if conn == nil {
				conn = r.dial(ctx)
				if conn == nil {
					continue // Dropped; the count on the monitor is authoritative.
				}
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(v); err != nil {
				r.log.Warn().Err(err).Msg("Violation write failed, reconnecting")
				conn.Close()
				conn = nil
			}
		}
	}
}

func (r *Reporter) dial(ctx context.Context) *websocket.Conn {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token)

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, r.url, header)
	if err != nil {
		r.log.Warn().Err(err).Str("url", r.url).Msg("Proctor socket dial failed")
		// Back off so a dead endpoint is not hammered per violation.
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return nil
	}
	r.log.Debug().Str("url", r.url).Msg("Proctor socket connected")
	return conn
}
