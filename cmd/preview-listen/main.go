// Command preview-listen connects to a marleyaccel preview server and prints
// curve updates as they arrive.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arthurfeeney/Marley-Accel/internal/logging"
	"github.com/arthurfeeney/Marley-Accel/internal/preview"
)

func main() {
	var (
		wsURL       = flag.String("ws", "ws://127.0.0.1:8099/ws", "preview websocket URL")
		raw         = flag.Bool("raw", false, "print every message as indented JSON")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
	)
	flag.Parse()

	level, err := logging.ParseLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := logging.New(level, os.Stderr)

	u, err := url.Parse(*wsURL)
	if err != nil {
		logger.Error("invalid websocket URL", "error", err)
		os.Exit(1)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	logger.Info("connecting", "url", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("connected (press Ctrl+C to exit)")

	// Protects concurrent writes to the websocket.
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				logger.Warn("ping failed", "error", err)
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var last map[string]string
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket error", "error", err)
				}
				return
			}
			// The server pings every 20s; any frame keeps us alive.
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if *raw {
				fmt.Println(indentJSON(message))
				continue
			}
			var out string
			out, last, err = describe(message, last)
			if err != nil {
				logger.Warn("unreadable message", "error", err)
				continue
			}
			fmt.Println(out)
		}
	}()

	select {
	case <-sigc:
		logger.Info("shutting down")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			logger.Warn("error closing connection", "error", err)
		}
	case <-done:
		logger.Info("connection closed")
	}
}

func indentJSON(message []byte) string {
	var v any
	if err := json.Unmarshal(message, &v); err != nil {
		return string(message)
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	return string(pretty)
}

// describe summarizes one preview message. last is the profile from the
// previous message; changed keys are listed against it.
func describe(message []byte, last map[string]string) (string, map[string]string, error) {
	var env preview.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return "", last, err
	}
	if env.Type != preview.TypeCurveInit && env.Type != preview.TypeCurveUpdated {
		return fmt.Sprintf("[%s]", strings.ToUpper(env.Type)), last, nil
	}

	var data preview.CurveData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", last, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if data.Profile == nil {
		return "", last, errors.New("message has no profile")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] samples=%d", strings.ToUpper(env.Type), len(data.Points))
	if lo, hi, ok := sensitivityRange(data.Points); ok {
		fmt.Fprintf(&b, " sens=%.4g..%.4g", lo, hi)
	} else {
		b.WriteString(" sens=n/a")
	}

	var changed []string
	for k, v := range data.Profile {
		if prev, ok := last[k]; last != nil && (!ok || prev != v) {
			changed = append(changed, fmt.Sprintf("%s: %s -> %s", k, prev, v))
		}
	}
	sort.Strings(changed)
	for _, c := range changed {
		b.WriteString("\n  " + c)
	}
	for _, fb := range data.Fallbacks {
		b.WriteString("\n  fallback " + fb)
	}
	return b.String(), data.Profile, nil
}

// sensitivityRange is the min and max of the finite samples.
func sensitivityRange(points []preview.CurvePoint) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, pt := range points {
		if pt.Sensitivity == nil {
			continue
		}
		lo = math.Min(lo, *pt.Sensitivity)
		hi = math.Max(hi, *pt.Sensitivity)
		ok = true
	}
	return lo, hi, ok
}
