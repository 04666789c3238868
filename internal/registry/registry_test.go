package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"tutorboard/internal/websocket"
)

var testUpgrader = gorillaws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newTestConnection returns an authenticated connection for userID plus a
// channel carrying every frame the server side receives from it.
func newTestConnection(t *testing.T, userID string) (*websocket.Connection, <-chan []byte) {
	t.Helper()

	received := make(chan []byte, 32)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	t.Cleanup(func() { server.Close() })

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	raw, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}

	conn := websocket.NewConnection(raw, nil)
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.Authenticate(userID, "user-"+userID, "student"); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return conn, received
}

func TestRegistry_RegisterValidation(t *testing.T) {
	reg := New()

	if err := reg.Register(nil); err != ErrNilConnection {
		t.Errorf("expected ErrNilConnection, got %v", err)
	}

	raw, received := newTestConnection(t, "alice")
	_ = received
	if err := reg.Register(raw); err != nil {
		t.Errorf("register failed: %v", err)
	}
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	reg := New()

	conn1, _ := newTestConnection(t, "alice")
	conn2, _ := newTestConnection(t, "alice")

	if err := reg.Register(conn1); err != nil {
		t.Fatalf("register conn1: %v", err)
	}
	if err := reg.Register(conn2); err != nil {
		t.Fatalf("register conn2: %v", err)
	}

	if got := len(reg.Connections("alice")); got != 2 {
		t.Errorf("expected 2 connections, got %d", got)
	}

	// Unregistering one leaves the other in place.
	reg.Unregister(conn1)
	conns := reg.Connections("alice")
	if len(conns) != 1 || conns[0] != conn2 {
		t.Error("unregister removed the wrong connection")
	}

	// A stale repeat unregister changes nothing.
	reg.Unregister(conn1)
	if got := len(reg.Connections("alice")); got != 1 {
		t.Errorf("expected 1 connection after stale unregister, got %d", got)
	}
}

func TestRegistry_SendToUserFansOutToAllConnections(t *testing.T) {
	reg := New()

	conn1, recv1 := newTestConnection(t, "alice")
	conn2, recv2 := newTestConnection(t, "alice")
	_ = reg.Register(conn1)
	_ = reg.Register(conn2)

	if !reg.SendToUser("alice", map[string]string{"type": "test", "body": "hello"}) {
		t.Fatal("send to online user should report delivery")
	}

	for i, recv := range []<-chan []byte{recv1, recv2} {
		select {
		case data := <-recv:
			var got map[string]string
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("connection %d received invalid JSON: %v", i+1, err)
			}
			if got["body"] != "hello" {
				t.Errorf("connection %d got body %q", i+1, got["body"])
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d never received the event", i+1)
		}
	}
}

func TestRegistry_SendToOfflineUser(t *testing.T) {
	reg := New()
	if reg.SendToUser("ghost", map[string]string{"type": "test"}) {
		t.Error("send to offline user should report no delivery")
	}
}

func TestRegistry_Stats(t *testing.T) {
	reg := New()

	conn, _ := newTestConnection(t, "alice")
	_ = reg.Register(conn)

	stats := reg.Stats()
	if stats["online_users"] != 1 || stats["total_connections"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	reg := New()

	const users = 8
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user%d", n)
			conn, _ := newTestConnection(t, userID)
			if err := reg.Register(conn); err != nil {
				t.Errorf("register %s: %v", userID, err)
				return
			}
			reg.SendToUser(userID, map[string]string{"type": "ping"})
			reg.Unregister(conn)
		}(i)
	}
	wg.Wait()

	if stats := reg.Stats(); stats["total_connections"] != 0 {
		t.Errorf("expected empty registry, got %v", stats)
	}
}

func TestRegistry_ShutdownDuringRegister(t *testing.T) {
	reg := New()

	const users = 8
	conns := make([]*websocket.Connection, users)
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		conns[i], _ = newTestConnection(t, fmt.Sprintf("user%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = reg.Register(conns[n])
		}(i)
	}
	reg.Shutdown()
	wg.Wait()

	// A registration racing the shutdown is either rejected outright or its
	// connection is found and closed by the sweep. No connection may survive.
	for i := 0; i < users; i++ {
		if errs[i] == nil && conns[i].State() != websocket.StateClosed {
			t.Errorf("connection %d registered but survived shutdown", i)
		}
		if errs[i] != nil && errs[i] != ErrShutdown {
			t.Errorf("connection %d: unexpected register error %v", i, errs[i])
		}
	}
	if stats := reg.Stats(); stats["total_connections"] != 0 {
		t.Errorf("expected empty registry after shutdown, got %v", stats)
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := New()

	conn, _ := newTestConnection(t, "alice")
	_ = reg.Register(conn)

	reg.Shutdown()

	if len(reg.Connections("alice")) != 0 {
		t.Error("no connections should remain after shutdown")
	}
	if conn.State() != websocket.StateClosed {
		t.Error("shutdown should close registered connections")
	}

	other, _ := newTestConnection(t, "bob")
	if err := reg.Register(other); err != ErrShutdown {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
}
