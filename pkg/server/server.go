// Package server exposes configured agents over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"polehammer/pkg/agent"
	"polehammer/pkg/llm"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds respond request bodies.
const maxBodyBytes = 1 << 20

// Server routes requests to the current agent set. The set can be swapped while
// serving; requests already in flight finish on the engine they started with.
type Server struct {
	agents   atomic.Pointer[agent.Set]
	router   *mux.Router
	http     *http.Server
	upgrader websocket.Upgrader
}

// New creates a server listening on addr.
func New(addr string, agents *agent.Set) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for decoupled UI
			},
		},
	}
	s.agents.Store(agents)

	r := mux.NewRouter()
	r.Use(requestID)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/agents", s.listAgentsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/agents/{name}/respond", s.respondHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/agents/{name}/ws", s.websocketHandler).Methods(http.MethodGet)
	s.router = r

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetAgents swaps the agent set used by new requests.
func (s *Server) SetAgents(agents *agent.Set) {
	s.agents.Store(agents)
	slog.Info("Agents updated", "agents", agents.Names())
}

// Handler returns the routing handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	slog.Info("HTTP API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestID tags every request with an id, echoed in X-Request-ID and used to group
// logs and debug exchanges.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), llm.DebugDirContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listAgentsHandler(w http.ResponseWriter, r *http.Request) {
	names := s.agents.Load().Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": names})
}

// IncomingMessage is one caller-supplied turn.
type IncomingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RespondRequest is the body of POST /v1/agents/{name}/respond.
type RespondRequest struct {
	Messages []IncomingMessage `json:"messages"`
}

// RespondResponse carries the full extended history and the final answer.
type RespondResponse struct {
	Messages llm.History `json:"messages"`
	Answer   string      `json:"answer"`
}

func (s *Server) respondHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	engine, ok := s.agents.Load().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent "+name)
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	history, err := historyFromRequest(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := engine.Respond(r.Context(), history)
	if err != nil {
		slog.ErrorContext(r.Context(), "Respond failed", "agent", name, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RespondResponse{Messages: out, Answer: agent.Answer(out)})
}

// historyFromRequest accepts only user and assistant turns; system prompts and tool
// results belong to the engine.
func historyFromRequest(msgs []IncomingMessage) (llm.History, error) {
	if len(msgs) == 0 {
		return llm.History{}, errors.New("messages must not be empty")
	}
	turns := make([]llm.Message, 0, len(msgs))
	for i, m := range msgs {
		switch llm.Role(strings.ToLower(m.Role)) {
		case llm.RoleUser:
			turns = append(turns, llm.NewUserMessage(m.Content))
		case llm.RoleAssistant:
			turns = append(turns, llm.NewAssistantMessage(m.Content))
		default:
			return llm.History{}, fmt.Errorf("message %d: role %q not accepted, use user or assistant", i, m.Role)
		}
	}
	return llm.NewHistory(turns...), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
