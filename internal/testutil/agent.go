package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/coral-mesh/devprof/internal/protocol"
)

// AgentHandler answers one protocol request. It returns the result to send
// (nil sends an empty object), an optional error payload, and events to push
// before the response.
type AgentHandler func(req protocol.Message) (result any, errPayload *protocol.ErrorPayload, events []protocol.Message)

// Agent is a websocket server speaking the devtools protocol.
type Agent struct {
	URL string

	t       *testing.T
	handler AgentHandler

	mu        sync.Mutex
	methods   []string
	conn      *websocket.Conn
	userAgent string
}

// NewAgent starts an agent served by handler. It is shut down with the test.
func NewAgent(t *testing.T, handler AgentHandler) *Agent {
	t.Helper()
	a := &Agent{t: t, handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(srv.Close)
	a.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return a
}

// Methods returns the methods received so far, in order.
func (a *Agent) Methods() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.methods...)
}

// UserAgent returns the User-Agent of the last handshake.
func (a *Agent) UserAgent() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userAgent
}

// Push sends an event on the current connection.
func (a *Agent) Push(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return websocket.ErrCloseSent
	}
	return a.conn.WriteJSON(protocol.Message{Method: method, Params: raw})
}

// Event builds an event message for an AgentHandler.
func Event(t *testing.T, method string, params any) protocol.Message {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal %s: %v", method, err)
	}
	return protocol.Message{Method: method, Params: raw}
}

func (a *Agent) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	a.mu.Lock()
	a.conn = conn
	a.userAgent = r.Header.Get("User-Agent")
	a.mu.Unlock()

	for {
		var req protocol.Message
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		a.mu.Lock()
		a.methods = append(a.methods, req.Method)
		a.mu.Unlock()

		result, errPayload, events := a.handler(req)

		resp := protocol.Message{ID: req.ID, Error: errPayload}
		if errPayload == nil {
			raw := []byte("{}")
			if result != nil {
				if raw, err = json.Marshal(result); err != nil {
					a.t.Errorf("marshal result: %v", err)
					return
				}
			}
			resp.Result = raw
		}

		a.mu.Lock()
		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				a.mu.Unlock()
				return
			}
		}
		err := conn.WriteJSON(resp)
		a.mu.Unlock()
		if err != nil {
			return
		}
	}
}
