package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	wsSubprotocol = "haven.notify.v1"

	wsDefaultSendQueueSize = 16
	wsDefaultWriteTimeout  = 5 * time.Second
	wsMaxFrameBytes        = 4 << 10

	// Origin is required by default; only localhost is allowed out of the
	// box (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// WSGateway is the WebSocket entrypoint for inbox update notifications.
//
// It enforces origin policy and subprotocol selection, subscribes the
// connection to the user's hub feed, and streams events until either side
// closes. Clients send nothing; the read loop exists only to notice closes.
type WSGateway struct {
	log *slog.Logger
	hub *Hub

	originRequired bool
	allowedOrigins []string
	originPatterns []string

	writeTimeout  time.Duration
	sendQueueSize int
}

// NewWSGateway constructs a gateway with secure defaults. A nil hub gets a
// fresh one, which keeps dev wiring simple.
func NewWSGateway(log *slog.Logger, hub *Hub) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	g := &WSGateway{log: log, hub: hub}
	if g.hub == nil {
		g.hub = NewHub(log, wsDefaultSendQueueSize)
	}

	g.originRequired = envBoolWS("HAVEN_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("HAVEN_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)

	g.writeTimeout = envDurationWS("HAVEN_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.sendQueueSize = envIntWS("HAVEN_WS_SEND_QUEUE", wsDefaultSendQueueSize)

	return g
}

// Hub returns the hub backing this gateway.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and streams inbox events for one user.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		http.Error(w, "user required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(wsMaxFrameBytes)

	sub := g.hub.Subscribe(userID)
	defer g.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain reads so close frames are processed; clients have nothing to say.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	g.log.Info("ws.subscribe", "user_id", userID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev := <-sub.Events():
			if err := g.writeEvent(ctx, conn, ev); err != nil {
				g.log.Info("ws.write.fail", "user_id", userID, "close_status", websocket.CloseStatus(err), "err", err)
				return
			}
		}
	}
}

func (g *WSGateway) writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return errors.New("invalid origin")
	}

	for _, allowed := range g.allowedOrigins {
		a, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Scheme, a.Scheme) && strings.EqualFold(u.Hostname(), a.Hostname()) {
			return nil
		}
	}
	return errors.New("origin not allowed")
}

// deriveOriginPatterns turns allowed origin URLs into host patterns for
// websocket.Accept, which enforces its own cross-origin policy.
func deriveOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(strings.TrimSpace(o))
		if err != nil || u.Hostname() == "" {
			continue
		}
		patterns = append(patterns, u.Hostname(), u.Hostname()+":*")
	}
	return patterns
}

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key, def string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
