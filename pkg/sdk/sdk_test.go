package sdk_test

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"

	"github.com/celerix-dev/celerix-redact/internal/engine"
	"github.com/celerix-dev/celerix-redact/internal/server"
	"github.com/celerix-dev/celerix-redact/pkg/sdk"
)

func serve(t *testing.T, store sdk.OptionStore) string {
	t.Helper()
	router := server.NewRouter(store)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go router.HandleConnection(conn)
		}
	}()

	t.Setenv("REDACT_DISABLE_TLS", "true")
	return listener.Addr().String()
}

func TestClient_Integration(t *testing.T) {
	addr := serve(t, engine.NewMemStore(nil, nil))

	client, err := sdk.Connect(addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if err := client.Set("shop", "k1", "yes"); err != nil {
		t.Fatalf("Client Set failed: %v", err)
	}

	val, err := client.Get("shop", "k1")
	if err != nil || val != "yes" {
		t.Errorf("Client Get failed: %v, %v", val, err)
	}

	site := client.Site("shop")
	if err := site.Set("k2", "no"); err != nil {
		t.Fatalf("Site Set failed: %v", err)
	}

	val, _ = site.Get("k2")
	if val != "no" {
		t.Errorf("Site Get failed: %v", val)
	}

	opts, err := client.GetSiteOptions("shop")
	if err != nil || len(opts) != 2 {
		t.Errorf("GetSiteOptions failed: %v, %v", opts, err)
	}

	sites, err := client.GetSites()
	if err != nil || len(sites) != 1 || sites[0] != "shop" {
		t.Errorf("GetSites failed: %v, %v", sites, err)
	}

	if err := site.Delete("k2"); err != nil {
		t.Fatalf("Site Delete failed: %v", err)
	}
}

func TestClient_SentinelErrors(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	store.Set("shop", "k1", "yes")
	addr := serve(t, store)

	client, err := sdk.Connect(addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if _, err := client.Get("shop", "missing"); !errors.Is(err, sdk.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
	if _, err := client.Get("elsewhere", "k1"); !errors.Is(err, sdk.ErrSiteNotFound) {
		t.Errorf("Expected ErrSiteNotFound, got %v", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := listener.Addr().String()
	listener.Close()

	t.Setenv("REDACT_DISABLE_TLS", "true")
	_, err := sdk.Connect(addr)
	if !errors.Is(err, sdk.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestClient_RetryLogic(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	router := server.NewRouter(store)

	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := listener.Addr().String()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			go router.HandleConnection(conn)
		}
	}()

	t.Setenv("REDACT_DISABLE_TLS", "true")
	client, err := sdk.Connect(addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	// Close the listener so no more connections can be accepted.
	listener.Close()

	// The accepted connection still serves this one.
	client.Set("shop", "k1", "yes")

	// Must not panic once reconnects start failing.
	client.Get("shop", "k1")
}

func TestClient_RejectsNamesThatBreakTheProtocol(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	store.Set("shop", "billing_phone", "no")
	store.Set("shop", "billing_email", "yes")
	addr := serve(t, store)

	client, err := sdk.Connect(addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	for _, key := range []string{"a\nPING", "billing_phone\textra", "billing_phone extra", ""} {
		if _, err := client.Get("shop", key); !errors.Is(err, sdk.ErrInvalidName) {
			t.Errorf("Get(%q): expected ErrInvalidName, got %v", key, err)
		}
		if err := client.Set("shop", key, "yes"); !errors.Is(err, sdk.ErrInvalidName) {
			t.Errorf("Set(%q): expected ErrInvalidName, got %v", key, err)
		}
	}
	if err := client.Set("../escaped", "k", "v"); !errors.Is(err, sdk.ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName for a path site, got %v", err)
	}
	if _, err := client.GetSiteOptions("shop\nPING"); !errors.Is(err, sdk.ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName for a multi-line site, got %v", err)
	}

	// The connection stays in step: each reply answers its own request.
	val, err := client.Get("shop", "billing_email")
	if err != nil || val != "yes" {
		t.Errorf("Expected yes, got %q, %v", val, err)
	}
	val, err = client.Get("shop", "billing_phone")
	if err != nil || val != "no" {
		t.Errorf("Expected no, got %q, %v", val, err)
	}
}

func TestClient_ReconnectsAfterMalformedReply(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	var conns atomic.Int32
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			n := conns.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				reader := bufio.NewReader(c)
				for {
					if _, err := reader.ReadString('\n'); err != nil {
						return
					}
					// The first connection answers out of step.
					if n == 1 {
						fmt.Fprintln(c, "PONG")
					} else {
						fmt.Fprintln(c, `OK "yes"`)
					}
				}
			}(conn)
		}
	}()

	t.Setenv("REDACT_DISABLE_TLS", "true")
	client, err := sdk.Connect(listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if _, err := client.Get("shop", "k1"); !errors.Is(err, sdk.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable for a malformed reply, got %v", err)
	}

	val, err := client.Get("shop", "k1")
	if err != nil || val != "yes" {
		t.Errorf("Expected yes after reconnect, got %q, %v", val, err)
	}
	if n := conns.Load(); n != 2 {
		t.Errorf("Expected 2 connections, got %d", n)
	}
}
