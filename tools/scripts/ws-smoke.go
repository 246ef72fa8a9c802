// Package main provides a CI-friendly WebSocket smoke test for Haven notify.
//
// It validates:
//   - handshake + subprotocol selection against /ws
//   - that an on-demand generation run pushes inbox.updated to the user's
//     socket when items were delivered, and stays quiet otherwise
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	subprotocol  = "haven.notify.v1"
	maxReadBytes = 64 << 10
)

type notifyEvent struct {
	Type  string    `json:"type"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		apiURL  = flag.String("api", "http://127.0.0.1:8080", "HTTP API base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userID  = flag.String("user", "smoke-user", "User ID to subscribe and generate for")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	conn := mustConnect(root, *wsURL, *origin, *userID, *timeout)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	if *verbose {
		fmt.Printf("connected: user=%s origin=%q subprotocol=%s\n", *userID, *origin, conn.Subprotocol())
	}

	status, inserted := mustGenerate(root, *apiURL, *userID, *timeout)
	if *verbose {
		fmt.Printf("generate: status=%s inserted=%d\n", status, inserted)
	}

	if inserted > 0 {
		ev := mustReadEvent(root, conn, *timeout)
		if ev.Type != "inbox.updated" {
			fatalf("unexpected event type: %q", ev.Type)
		}
		if ev.Count != inserted {
			fatalf("event count=%d, API reported inserted=%d", ev.Count, inserted)
		}
	} else {
		assertNoEvent(root, conn, 1200*time.Millisecond)
	}

	fmt.Printf("OK: user=%s status=%s inserted=%d\n", *userID, status, inserted)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin, userID string, timeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse ws url: %v", err)
	}
	q := u.Query()
	q.Set("user", userID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if strings.TrimSpace(origin) != "" {
		header.Set("Origin", origin)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   header,
	})
	if err != nil {
		fatalf("dial: %v", err)
	}
	if conn.Subprotocol() != subprotocol {
		fatalf("subprotocol: got %q want %q", conn.Subprotocol(), subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustGenerate(parent context.Context, apiURL, userID string, timeout time.Duration) (string, int) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		fatalf("marshal: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiURL, "/")+"/inbox/generate", bytes.NewReader(body))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("generate request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Status   string `json:"status"`
		Inserted []any  `json:"inserted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fatalf("decode generate response: %v", err)
	}
	return out.Status, len(out.Inserted)
}

func mustReadEvent(parent context.Context, conn *websocket.Conn, timeout time.Duration) notifyEvent {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("read event: %v", err)
	}
	var ev notifyEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		fatalf("decode event: %v (raw=%q)", err, data)
	}
	return ev
}

func assertNoEvent(parent context.Context, conn *websocket.Conn, window time.Duration) {
	ctx, cancel := context.WithTimeout(parent, window)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err == nil {
		fatalf("unexpected event during quiet window: %q", data)
	}
	if websocket.CloseStatus(err) != -1 {
		fatalf("connection closed during quiet window: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
