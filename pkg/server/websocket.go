package server

import (
	"log/slog"
	"net/http"
	"strings"

	"polehammer/pkg/agent"
	"polehammer/pkg/llm"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Frame is a server-to-client websocket message.
type Frame struct {
	Type  string `json:"type"` // "answer" or "error"
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type incomingFrame struct {
	Text string `json:"text"`
}

// websocketHandler keeps one conversation per connection. Each text frame is a user
// turn; the history lives only as long as the connection.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := s.agents.Load().Get(name); !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+name)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "WS Upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	log := slog.With("agent", name, "remote", r.RemoteAddr)
	log.InfoContext(ctx, "Websocket connected")

	var history llm.History
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WarnContext(ctx, "Websocket read failed", "error", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		text := parseFrameText(data)
		if text == "" {
			if err := writeFrame(conn, Frame{Type: "error", Error: "empty message"}); err != nil {
				break
			}
			continue
		}

		// looked up per turn so a config reload applies to open connections
		engine, ok := s.agents.Load().Get(name)
		if !ok {
			_ = writeFrame(conn, Frame{Type: "error", Error: "agent " + name + " is no longer available"})
			break
		}

		out, err := engine.Respond(ctx, history.Append(llm.NewUserMessage(text)))
		if err != nil {
			log.ErrorContext(ctx, "Respond failed", "error", err)
			// the failed exchange is dropped so the next turn starts clean
			if err := writeFrame(conn, Frame{Type: "error", Error: err.Error()}); err != nil {
				break
			}
			continue
		}

		history = out
		if err := writeFrame(conn, Frame{Type: "answer", Text: agent.Answer(out)}); err != nil {
			log.WarnContext(ctx, "Websocket write failed", "error", err)
			break
		}
	}

	log.InfoContext(ctx, "Websocket closed", "turns", history.Len())
}

// parseFrameText accepts {"text": "..."} or a plain text frame.
func parseFrameText(data []byte) string {
	var in incomingFrame
	if err := json.Unmarshal(data, &in); err == nil {
		return strings.TrimSpace(in.Text)
	}
	return strings.TrimSpace(string(data))
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
