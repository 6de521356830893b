// Package sdk provides the client-side library for the redaction option store.
// It supports remote connections via TCP/TLS; the embedded engine satisfies the same contracts.
package sdk

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// Client is a remote client for the option store.
// It implements the OptionStore interface.
type Client struct {
	addr    string
	conn    net.Conn
	reader  *bufio.Reader
	mu      sync.Mutex // Protects concurrent access to the connection
	attempt int
}

// Connect establishes a TLS-encrypted connection to a remote option store.
// If REDACT_DISABLE_TLS is set to "true", it falls back to plain TCP.
func Connect(addr string) (*Client, error) {
	c := &Client{addr: addr, attempt: 3}
	if err := c.reconnect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	if os.Getenv("REDACT_DISABLE_TLS") == "true" {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}

	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// sendAndReceive writes one command line and reads one reply line.
// Server-side errors come back as sentinels where the message matches one.
func (c *Client) sendAndReceive(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	var resp string

	for i := 0; i < c.attempt; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(30 * time.Second))

		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if strings.HasPrefix(resp, "ERR") {
					return "", remoteError(strings.TrimPrefix(resp, "ERR "))
				}
				return resp, nil
			}
		}

		slog.Warn("option store request failed, reconnecting", "attempt", i+1, "addr", c.addr, "error", err)

		if closeErr := c.reconnect(); closeErr != nil {
			slog.Warn("option store reconnect failed", "addr", c.addr, "error", closeErr)
		}

		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("%w: failed after %d attempts: %v", ErrUnavailable, c.attempt, err)
}

func remoteError(msg string) error {
	switch msg {
	case ErrKeyNotFound.Error():
		return ErrKeyNotFound
	case ErrSiteNotFound.Error():
		return ErrSiteNotFound
	case ErrInvalidName.Error():
		return ErrInvalidName
	}
	return fmt.Errorf("%s", msg)
}

func checkNames(siteID, key string) error {
	if !ValidSite(siteID) {
		return fmt.Errorf("%w: site %q", ErrInvalidName, siteID)
	}
	if !ValidKey(key) {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	return nil
}

// decode parses the payload of an OK reply. A reply that does not parse means
// the connection is out of step with the server, so it is dropped and redialled.
func (c *Client) decode(resp string, v any) error {
	payload, ok := strings.CutPrefix(resp, "OK ")
	err := json.Unmarshal([]byte(payload), v)
	if ok && err == nil {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("unexpected reply %q", resp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if reconnectErr := c.reconnect(); reconnectErr != nil {
		slog.Warn("option store reconnect failed", "addr", c.addr, "error", reconnectErr)
	}
	return fmt.Errorf("%w: malformed reply: %v", ErrUnavailable, err)
}

func (c *Client) Get(siteID, key string) (string, error) {
	if err := checkNames(siteID, key); err != nil {
		return "", err
	}
	resp, err := c.sendAndReceive(fmt.Sprintf("GET %s %s", siteID, key))
	if err != nil {
		return "", err
	}
	var val string
	if err := c.decode(resp, &val); err != nil {
		return "", err
	}
	return val, nil
}

func (c *Client) Set(siteID, key, val string) error {
	if err := checkNames(siteID, key); err != nil {
		return err
	}
	jsonData, _ := json.Marshal(val)
	_, err := c.sendAndReceive(fmt.Sprintf("SET %s %s %s", siteID, key, string(jsonData)))
	return err
}

func (c *Client) Delete(siteID, key string) error {
	if err := checkNames(siteID, key); err != nil {
		return err
	}
	_, err := c.sendAndReceive(fmt.Sprintf("DEL %s %s", siteID, key))
	return err
}

func (c *Client) GetSites() ([]string, error) {
	resp, err := c.sendAndReceive("LIST_SITES")
	if err != nil {
		return nil, err
	}
	var list []string
	if err := c.decode(resp, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) GetSiteOptions(siteID string) (map[string]string, error) {
	if !ValidSite(siteID) {
		return nil, fmt.Errorf("%w: site %q", ErrInvalidName, siteID)
	}
	resp, err := c.sendAndReceive(fmt.Sprintf("DUMP %s", siteID))
	if err != nil {
		return nil, err
	}
	var opts map[string]string
	if err := c.decode(resp, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Ping checks that the remote store answers.
func (c *Client) Ping() error {
	resp, err := c.sendAndReceive("PING")
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("unexpected ping reply %q", resp)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	return c.conn.Close()
}

// Site returns a scoped interface for a specific site.
func (c *Client) Site(siteID string) SiteScope {
	return &RemoteSiteScope{
		client: c,
		siteID: siteID,
	}
}

// RemoteSiteScope is a scoped client that remembers its site ID.
type RemoteSiteScope struct {
	client *Client
	siteID string
}

// Get retrieves an option of the scoped site.
func (s *RemoteSiteScope) Get(key string) (string, error) {
	return s.client.Get(s.siteID, key)
}

// Set stores an option of the scoped site.
func (s *RemoteSiteScope) Set(key, val string) error {
	return s.client.Set(s.siteID, key, val)
}

// Delete removes an option of the scoped site.
func (s *RemoteSiteScope) Delete(key string) error {
	return s.client.Delete(s.siteID, key)
}
