package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	applogger "OptiFlow/pkg/logger"
	"OptiFlow/pkg/metrics"

	"github.com/gorilla/websocket"
)

func wsTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReadSurfacesDisconnect(t *testing.T) {
	srv := wsTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewBrokerClient(url, "tok", nil, time.Hour, applogger.NewNop(), metrics.Noop{})

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	ticks, errs := client.Read(context.Background())
	for range ticks {
	}
	if err := <-errs; err == nil {
		t.Fatal("expected a disconnect error")
	}
	if client.IsConnected() {
		t.Fatal("still marked connected after read failure")
	}
}

func TestPingLoopEndsWithReadSession(t *testing.T) {
	srv := wsTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewBrokerClient(url, "tok", nil, time.Hour, applogger.NewNop(), metrics.Noop{})

	const cycles = 8
	before := runtime.NumGoroutine()
	for i := 0; i < cycles; i++ {
		if err := client.Connect(context.Background()); err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		ticks, errs := client.Read(context.Background())
		for range ticks {
		}
		<-errs
		if err := client.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}

	// the ticker is an hour out, so a leaked ping loop per cycle would
	// still be parked here
	deadline := time.Now().Add(2 * time.Second)
	growth := runtime.NumGoroutine() - before
	for time.Now().Before(deadline) && growth >= cycles {
		time.Sleep(10 * time.Millisecond)
		growth = runtime.NumGoroutine() - before
	}
	if growth >= cycles {
		t.Fatalf("goroutines grew by %d across %d reconnect cycles", growth, cycles)
	}
}
