// Package main is a CI-friendly smoke test for a fleetdash push endpoint.
//
// It validates:
//   - handshake with the access token in the query string
//   - ping -> pong heartbeat
//   - every frame decodes as a v1 frame
//   - optionally, that an event of a given type arrives
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "fleetdash/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"
)

const maxReadBytes = 1 << 20 // 1MiB

func main() {
	var (
		wsURL    = pflag.String("url", "ws://127.0.0.1:8000/ws", "push endpoint URL (token is added as ?token=)")
		tok      = pflag.String("token", os.Getenv("FLEETDASH_ACCESS_TOKEN"), "access token (default $FLEETDASH_ACCESS_TOKEN)")
		expect   = pflag.String("expect", "", "event type that must arrive before --duration elapses")
		duration = pflag.Duration("duration", 10*time.Second, "how long to listen")
		timeout  = pflag.Duration("timeout", 7*time.Second, "handshake timeout")
		verbose  = pflag.BoolP("verbose", "v", false, "print every frame")
	)
	pflag.Parse()

	target, err := withToken(*wsURL, *tok)
	if err != nil {
		fatalf("invalid --url: %v", err)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	conn, resp, err := websocket.Dial(dialCtx, target, nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(maxReadBytes)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var pings, events int
	seen := *expect == ""
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fatalf("read: %v", err)
		}

		f, err := v1.Decode(data)
		if err != nil {
			fatalf("bad frame %q: %v", truncate(data), err)
		}
		if *verbose {
			fmt.Printf("frame: type=%s payload=%d bytes\n", f.Type, len(f.Payload))
		}

		switch f.Type {
		case v1.TypePing:
			pings++
			b, _ := v1.Encode(v1.Pong())
			wctx, wcancel := context.WithTimeout(ctx, *timeout)
			err := conn.Write(wctx, websocket.MessageText, b)
			wcancel()
			if err != nil {
				fatalf("write pong: %v", err)
			}
		case v1.TypePong:
		default:
			events++
			if f.Type == *expect {
				seen = true
				cancel()
			}
		}
	}

	if !seen {
		fatalf("no %q event within %s (pings=%d events=%d)", *expect, *duration, pings, events)
	}
	fmt.Printf("OK: pings=%d events=%d\n", pings, events)
}

func withToken(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	if token == "" {
		return "", errors.New("missing --token")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte) string {
	if len(b) > 80 {
		return string(b[:80]) + "..."
	}
	return string(b)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
