package scratch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cloudServer fakes the cloud variable server: it accepts one
// connection, records the handshake, delivers the queued request
// frames, and captures every set frame the transport writes back.
type cloudServer struct {
	requests   []cloudFrame
	handshakes chan cloudFrame
	responses  chan cloudFrame
}

func newCloudServer() *cloudServer {
	return &cloudServer{
		handshakes: make(chan cloudFrame, 1),
		responses:  make(chan cloudFrame, 16),
	}
}

func (s *cloudServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// First frame is the handshake
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hs cloudFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &hs))
		s.handshakes <- hs
		// Deliver the queued requests
		for _, frame := range s.requests {
			body, err := json.Marshal(frame)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, append(body, '\n')))
		}
		// Capture everything written back until the client goes away
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, line := range strings.Split(string(raw), "\n") {
				if strings.TrimSpace(line) == "" {
					continue
				}
				var frame cloudFrame
				if json.Unmarshal([]byte(line), &frame) == nil {
					s.responses <- frame
				}
			}
		}
	}
}

// request builds a set frame carrying one encoded request value
func request(reqID, payload string) cloudFrame {
	value, _ := json.Marshal(Encode(payload) + reqID)
	return cloudFrame{Method: "set", Name: requestVar, Value: value}
}

func runTransport(t *testing.T, srv *httptest.Server, tr *Transport) context.CancelFunc {
	t.Helper()
	tr.CloudHost = "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = tr.Run(ctx) }()
	return cancel
}

func TestTransport_HandshakeAndReady(t *testing.T) {
	server := newCloudServer()
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	tr := NewTransport(&Session{Username: "dev-server"}, 123)
	ready := make(chan struct{})
	tr.OnReady(func() { close(ready) })
	cancel := runTransport(t, srv, tr)
	defer cancel()

	select {
	case hs := <-server.handshakes:
		assert.Equal(t, "handshake", hs.Method)
		assert.Equal(t, "dev-server", hs.User)
		assert.Equal(t, "123", hs.ProjectID)
	case <-time.After(3 * time.Second):
		t.Fatal("no handshake received")
	}
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("on-ready hook never fired")
	}
}

func TestTransport_DispatchesAndReplies(t *testing.T) {
	server := newCloudServer()
	server.requests = []cloudFrame{request("0042", "ping")}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	tr := NewTransport(&Session{Username: "dev-server"}, 123)
	tr.Handle("ping", func(args []string) any { return "pong" })
	cancel := runTransport(t, srv, tr)
	defer cancel()

	select {
	case frame := <-server.responses:
		assert.Equal(t, "set", frame.Method)
		assert.Equal(t, responseVar+"_1", frame.Name)
		value := rawValue(frame.Value)
		// Value is reqID + chunk index + more flag + encoded reply
		require.Greater(t, len(value), idDigits+2)
		assert.Equal(t, "0042", value[:idDigits])
		assert.Equal(t, "0", string(value[idDigits]), "single chunk index")
		assert.Equal(t, "0", string(value[idDigits+1]), "final chunk flag")
		reply, err := Decode(value[idDigits+2:])
		require.NoError(t, err)
		assert.Equal(t, "pong", reply)
	case <-time.After(3 * time.Second):
		t.Fatal("no response written")
	}
}

func TestTransport_SplitsArgumentsOnUnitSeparator(t *testing.T) {
	server := newCloudServer()
	server.requests = []cloudFrame{request("0007", "give\x1f30\x1fbob alice smith")}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	got := make(chan []string, 1)
	tr := NewTransport(&Session{Username: "dev-server"}, 123)
	tr.Handle("give", func(args []string) any {
		got <- args
		return "70"
	})
	cancel := runTransport(t, srv, tr)
	defer cancel()

	select {
	case args := <-got:
		// The second argument keeps its spaces intact
		assert.Equal(t, []string{"30", "bob alice smith"}, args)
	case <-time.After(3 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestTransport_ListReplyJoinsRecords(t *testing.T) {
	server := newCloudServer()
	server.requests = []cloudFrame{request("0001", "leaderboard")}
	srv := httptest.NewServer(server.handler(t))
	defer srv.Close()

	tr := NewTransport(&Session{Username: "dev-server"}, 123)
	tr.Handle("leaderboard", func(args []string) any {
		return []string{"alice: 120", "bob: 90"}
	})
	cancel := runTransport(t, srv, tr)
	defer cancel()

	select {
	case frame := <-server.responses:
		value := rawValue(frame.Value)
		reply, err := Decode(value[idDigits+2:])
		require.NoError(t, err)
		assert.Equal(t, []string{"alice: 120", "bob: 90"}, strings.Split(reply, "\x1e"))
	case <-time.After(3 * time.Second):
		t.Fatal("no response written")
	}
}

func TestRawValue_AcceptsStringsAndNumbers(t *testing.T) {
	assert.Equal(t, "112105110103", rawValue(json.RawMessage(`"112105110103"`)))
	assert.Equal(t, "42", rawValue(json.RawMessage(`42`)))
}
