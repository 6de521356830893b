// Package server exposes an option store over a line-oriented TCP protocol.
//
//	GET <site> <key>          -> OK <json string> | ERR <msg>
//	SET <site> <key> <json>   -> OK | ERR <msg>
//	DEL <site> <key>          -> OK | ERR <msg>
//	LIST_SITES                -> OK <json array>
//	DUMP <site>               -> OK <json object>
//	PING                      -> PONG
//	QUIT
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

type Router struct {
	store    sdk.OptionStore
	cert     *tls.Certificate
	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewRouter(s sdk.OptionStore) *Router {
	return &Router{store: s}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}
	return r.Serve(listener)
}

// Serve accepts connections on listener until Stop is called.
// Accept failures are retried with a backoff capped at one second.
func (r *Router) Serve(listener net.Listener) error {
	r.mu.Lock()
	r.listener = listener
	closed := r.closed
	r.mu.Unlock()
	defer listener.Close()
	if closed {
		return nil
	}

	semaphore := make(chan struct{}, 100) // Max 100 concurrent connections
	var backoff time.Duration

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return nil
			}

			backoff *= 2
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			slog.Warn("option store accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener; Listen returns once the accept loop notices.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// HandleConnection serves commands on conn until QUIT, EOF or an idle timeout.
func (r *Router) HandleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimRight(line, "\r\n")
		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		cmd := strings.ToUpper(parts[0])
		if !validArgs(cmd, parts) {
			fmt.Fprintln(conn, "ERR", sdk.ErrInvalidName)
			continue
		}

		switch cmd {
		case "GET":
			if len(parts) < 3 {
				fmt.Fprintln(conn, "ERR usage: GET <site> <key>")
				continue
			}
			val, err := r.store.Get(parts[1], parts[2])
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			writeJSON(conn, val)

		case "SET":
			if len(parts) < 4 {
				fmt.Fprintln(conn, "ERR usage: SET <site> <key> <json>")
				continue
			}
			// The value is the rest of the line after the 3rd word, spacing intact
			var val string
			if err := json.Unmarshal([]byte(afterFields(line, 3)), &val); err != nil {
				fmt.Fprintln(conn, "ERR invalid json string value")
				continue
			}
			if err := r.store.Set(parts[1], parts[2], val); err != nil {
				fmt.Fprintln(conn, "ERR", errorMessage(err))
				continue
			}
			fmt.Fprintln(conn, "OK")

		case "DEL":
			if len(parts) < 3 {
				fmt.Fprintln(conn, "ERR usage: DEL <site> <key>")
				continue
			}
			if err := r.store.Delete(parts[1], parts[2]); err != nil {
				fmt.Fprintln(conn, "ERR", errorMessage(err))
				continue
			}
			fmt.Fprintln(conn, "OK")

		case "LIST_SITES":
			list, err := r.store.GetSites()
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			writeJSON(conn, list)

		case "DUMP":
			if len(parts) < 2 {
				fmt.Fprintln(conn, "ERR usage: DUMP <site>")
				continue
			}
			data, err := r.store.GetSiteOptions(parts[1])
			if err != nil {
				fmt.Fprintln(conn, "ERR", err)
				continue
			}
			writeJSON(conn, data)

		case "PING":
			fmt.Fprintln(conn, "PONG")

		case "QUIT":
			return

		default:
			slog.Debug("unknown option store command", "command", parts[0])
			fmt.Fprintln(conn, "ERR unknown command")
		}
	}
}

// validArgs checks the site and key words of commands that name them.
func validArgs(cmd string, parts []string) bool {
	switch cmd {
	case "GET", "SET", "DEL":
		if len(parts) >= 3 && !sdk.ValidKey(parts[2]) {
			return false
		}
		fallthrough
	case "DUMP":
		if len(parts) >= 2 && !sdk.ValidSite(parts[1]) {
			return false
		}
	}
	return true
}

// afterFields returns line with its first n whitespace-separated words removed.
func afterFields(line string, n int) string {
	s := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			return ""
		}
		s = strings.TrimLeft(s[end:], " \t")
	}
	return s
}

// errorMessage sends sentinels by their bare text so the client can map them back.
func errorMessage(err error) error {
	if errors.Is(err, sdk.ErrInvalidName) {
		return sdk.ErrInvalidName
	}
	return err
}

func writeJSON(conn net.Conn, v any) {
	res, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(conn, "ERR internal error")
		return
	}
	fmt.Fprintln(conn, "OK", string(res))
}
