package scratch

import (
	"context"       // Cancellation for the run loop
	"encoding/json" // Cloud protocol frames
	"errors"        // Connection state errors
	"net/http"      // Handshake headers
	"strconv"       // Project ids and chunk counters
	"strings"       // Frame splitting
	"sync"          // Guards the connection
	"time"          // Reconnect backoff

	"github.com/gorilla/websocket" // Cloud variable websocket
	"github.com/sirupsen/logrus"   // Logging library
)

// Cloud variable names carrying the request/response traffic. Clients
// write digit payloads to the request variable; replies are chunked
// across the response variables.
const (
	requestVar   = "☁ TO_HOST"   // Incoming requests
	responseVar  = "☁ FROM_HOST" // Response prefix, suffixed _1.._4
	responseVars = 4                  // Response variables available
	chunkDigits  = 220                // Payload digits per response chunk
	idDigits     = 4                  // Request id digits on every value
)

// HandlerFunc is one named operation. It receives positional string
// arguments and returns a string or a []string; anything else is
// rejected at registration time by convention.
type HandlerFunc func(args []string) any

// Transport is a cloud-variable request dispatcher: it holds one
// websocket connection to the cloud server, decodes request frames,
// invokes the registered handler, and writes the encoded reply back.
// Dispatch is serialized by the single read loop, so handlers never
// run concurrently with each other.
type Transport struct {
	CloudHost string // Websocket endpoint, overridable for tests

	projectID int               // Project whose variables we serve
	session   *Session          // Authenticated session for the handshake
	handlers  map[string]HandlerFunc
	onReady   func()            // Fired once after the first handshake
	readyOnce sync.Once

	mu   sync.Mutex // Guards conn
	conn *websocket.Conn
}

// NewTransport creates a dispatcher for one project's cloud variables
func NewTransport(session *Session, projectID int) *Transport {
	return &Transport{
		CloudHost: "wss://clouddata.scratch.mit.edu", // Default cloud server
		projectID: projectID,                         // Served project
		session:   session,                           // Handshake identity
		handlers:  make(map[string]HandlerFunc),      // Named operations
	}
}

// Handle registers a named operation
func (t *Transport) Handle(name string, fn HandlerFunc) {
	t.handlers[name] = fn
}

// OnReady registers the hook fired once the connection is established
func (t *Transport) OnReady(fn func()) {
	t.onReady = fn
}

// cloudFrame is one message of the cloud variable protocol. Values
// travel as raw JSON because clients send digit strings that must not
// pass through float formatting.
type cloudFrame struct {
	Method    string          `json:"method"`               // handshake or set
	User      string          `json:"user,omitempty"`       // Acting username
	ProjectID string          `json:"project_id,omitempty"` // Target project
	Name      string          `json:"name,omitempty"`       // Variable name
	Value     json.RawMessage `json:"value,omitempty"`      // Variable value
}

// Run connects and serves requests until the context is cancelled,
// reconnecting with a fixed delay after connection loss
func (t *Transport) Run(ctx context.Context) error {
	for {
		if err := t.serve(ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"project": t.projectID, // Served project
				"error":   err.Error(), // Connection failure
			}).Error("Cloud connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// serve runs one connection lifetime: dial, handshake, read loop
func (t *Transport) serve(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Cookie", t.session.cookieHeader())
	header.Set("Origin", "https://scratch.mit.edu")
	conn, _, err := dialer.DialContext(ctx, t.CloudHost, header)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer conn.Close()
	// Announce ourselves for this project's variables
	if err := t.writeFrame(cloudFrame{
		Method:    "handshake",                // Join the project channel
		User:      t.session.Username,         // Service account
		ProjectID: strconv.Itoa(t.projectID),  // Served project
	}); err != nil {
		return err
	}
	t.readyOnce.Do(func() {
		if t.onReady != nil {
			t.onReady()
		}
	})
	// Close the socket when the context ends so ReadMessage unblocks
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// The server batches frames as newline-separated JSON
		for _, line := range strings.Split(string(raw), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var frame cloudFrame
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				logrus.WithField("error", err.Error()).Warn("Dropping malformed cloud frame")
				continue
			}
			if frame.Method == "set" && frame.Name == requestVar {
				t.dispatch(frame.Value)
			}
		}
	}
}

// rawValue renders a frame value as its digit string, accepting both
// JSON strings and JSON numbers
func rawValue(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' {
		var out string
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	return s
}

// dispatch decodes one request value, runs the named handler, and
// writes the reply chunks
func (t *Transport) dispatch(raw json.RawMessage) {
	value := rawValue(raw)
	if len(value) <= idDigits {
		return // Too short to carry an id and a payload
	}
	// The trailing digits are the client's request id; the rest is
	// the encoded payload
	reqID := value[len(value)-idDigits:]
	payload, err := Decode(value[:len(value)-idDigits])
	if err != nil {
		logrus.WithField("error", err.Error()).Warn("Dropping undecodable request")
		return
	}
	// Payload fields are separated by the unit separator so argument
	// values may contain spaces
	fields := strings.Split(payload, "\x1f")
	name := fields[0]
	args := fields[1:]
	handler, ok := t.handlers[name]
	if !ok {
		logrus.WithField("request", name).Warn("Unknown request")
		return
	}
	result := handler(args)
	var parts []string
	switch v := result.(type) {
	case string:
		parts = []string{v} // Single string reply
	case []string:
		parts = v // List reply
	default:
		logrus.WithField("request", name).Error("Handler returned unsupported reply type")
		return
	}
	// List items are joined with the record separator; the client
	// splits them back apart
	t.respond(reqID, Encode(strings.Join(parts, "\x1e")))
	logrus.WithFields(logrus.Fields{
		"request": name,      // Operation name
		"args":    len(args), // Argument count
	}).Debug("Request served")
}

// respond writes an encoded reply across the response variables in
// chunks; each chunk value is reqID + chunk index + more flag + data
func (t *Transport) respond(reqID, digits string) {
	var chunks []string
	for len(digits) > chunkDigits {
		chunks = append(chunks, digits[:chunkDigits])
		digits = digits[chunkDigits:]
	}
	chunks = append(chunks, digits)
	for i, chunk := range chunks {
		more := "1"
		if i == len(chunks)-1 {
			more = "0" // Final chunk
		}
		idx := strconv.Itoa(i % 10)
		varName := responseVar + "_" + strconv.Itoa(i%responseVars+1)
		frame := cloudFrame{
			Method:    "set",                     // Variable update
			User:      t.session.Username,        // Service account
			ProjectID: strconv.Itoa(t.projectID), // Served project
			Name:      varName,                   // Response variable
			Value:     json.RawMessage(strconv.Quote(reqID + idx + more + chunk)),
		}
		if err := t.writeFrame(frame); err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to write response chunk")
			return
		}
	}
}

// writeFrame sends one newline-terminated protocol frame
func (t *Transport) writeFrame(frame cloudFrame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return errors.New("scratch: not connected")
	}
	return t.conn.WriteMessage(websocket.TextMessage, append(raw, '\n'))
}
