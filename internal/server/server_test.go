package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := New(addr, okHandler())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning = false after successful bind")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.IsRunning() {
		t.Error("IsRunning = true after Stop")
	}
}

func TestStartSoftFailsOnBoundPort(t *testing.T) {
	t.Parallel()

	// Another "process" already owns the endpoint.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer ln.Close()

	s := New(ln.Addr().String(), okHandler())
	if err := s.Start(); err != nil {
		t.Fatalf("Start on bound port must not error, got %v", err)
	}
	if s.IsRunning() {
		t.Fatal("IsRunning = true without owning the endpoint")
	}
}

func TestStopResetsStartAttempt(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	addr := ln.Addr().String()

	s := New(addr, okHandler())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.IsRunning() {
		t.Fatal("bind should have soft-failed")
	}

	// A second Start before Stop is a no-op.
	if err := s.Start(); err != nil {
		t.Fatalf("repeat Start: %v", err)
	}
	if s.IsRunning() {
		t.Fatal("repeat Start must not bind")
	}

	// After Stop the port is free and a retry binds.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	ln.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("retry after Stop did not bind")
	}
	s.Stop(context.Background())
}
