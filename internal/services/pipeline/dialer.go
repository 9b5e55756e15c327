package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/interfaces"
)

// DefaultHandshakeTimeout bounds the websocket handshake
const DefaultHandshakeTimeout = 5 * time.Second

// Dialer opens the per-job live channel at /api/jobs/{id}/ws
type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  arbor.ILogger
}

var _ interfaces.LiveDialer = (*Dialer)(nil)

// NewDialer creates a live channel dialer for the server at baseURL (http or https).
func NewDialer(baseURL string, logger arbor.ILogger) *Dialer {
	return &Dialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		logger: logger,
	}
}

// LiveURL returns the websocket URL for jobID
func (d *Dialer) LiveURL(jobID string) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", d.baseURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/jobs/" + url.PathEscape(jobID) + "/ws"
	return u.String(), nil
}

// Dial opens the live channel. The handshake honours ctx.
func (d *Dialer) Dial(ctx context.Context, jobID string) (interfaces.LiveConn, error) {
	target, err := d.LiveURL(jobID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live channel handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("live channel dial failed: %w", err)
	}

	if d.logger != nil {
		d.logger.Debug().Str("job_id", jobID).Str("url", target).Msg("Live channel connected")
	}
	return conn, nil
}
