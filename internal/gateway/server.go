// Package gateway implements the Event Stream Gateway (C19, SPEC_FULL.md
// §4.19): the one concrete network realization of the "consumer (UI or test
// harness)" spec.md §1 leaves external. POST /turns starts a turn and
// upgrades the connection to a WebSocket that streams that turn's events, in
// seq order, as JSON text frames shaped like pkg/models.Event.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/turnengine/engine/internal/eventbus"
	"github.com/turnengine/engine/internal/graph"
	"github.com/turnengine/engine/internal/observability"
	"github.com/turnengine/engine/internal/runner"
	"github.com/turnengine/engine/internal/wiring"
	"github.com/turnengine/engine/pkg/models"
)

// Server serves the event stream over HTTP+WebSocket. One turn at a time
// (§5: the engine is not reentrant); a second POST /turns while a turn is
// in-flight is rejected with 409.
type Server struct {
	deps     *wiring.Deps
	svc      *wiring.Services
	graph    *graph.Graph
	metrics  *observability.Metrics
	logger   *observability.Logger
	upgrader websocket.Upgrader
	busy     atomic.Bool
}

func New(deps *wiring.Deps, svc *wiring.Services, g *graph.Graph, metrics *observability.Metrics, logger *observability.Logger) *Server {
	return &Server{
		deps:    deps,
		svc:     svc,
		graph:   g,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type turnRequest struct {
	TurnID   string `json:"turn_id"`
	UserText string `json:"user_text"`
	TZ       string `json:"tz"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/turns", s.handleTurn)
	return mux
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.busy.CompareAndSwap(false, true) {
		http.Error(w, "a turn is already in flight", http.StatusConflict)
		return
	}
	defer s.busy.Store(false)

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserText == "" {
		http.Error(w, "user_text is required", http.StatusBadRequest)
		return
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	if req.TZ == "" {
		req.TZ = "UTC"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := observability.AddTurnID(r.Context(), req.TurnID)
	nowISO := time.Now().UTC().Format(time.RFC3339)

	if s.metrics != nil {
		s.metrics.TurnStarted()
	}
	turnStart := time.Now()

	events, outcome := runner.Run(ctx, req.TurnID, req.UserText, nowISO, req.TZ, s.deps, s.svc, s.graph)
	for ev := range events {
		if err := conn.WriteJSON(toPublicEvent(ev)); err != nil {
			s.logger.Warn(ctx, "dropping websocket client", "error", err)
			// Drain the rest so the worker goroutine in runner.Run is never
			// left blocked on a full channel send.
			for range events {
			}
			break
		}
	}

	out := <-outcome
	status := "ok"
	if out.Err != nil {
		status = "error"
		s.logger.Error(ctx, "turn failed", "error", out.Err)
	}
	if s.metrics != nil {
		s.metrics.TurnEnded(status, time.Since(turnStart).Seconds())
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// ListenAndServe runs the gateway's HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func toPublicEvent(ev eventbus.Event) models.Event {
	return models.Event{
		TurnID:      ev.TurnID,
		Seq:         ev.Seq,
		TSMs:        ev.TSMs,
		Kind:        models.EventKind(ev.Kind),
		NodeID:      ev.NodeID,
		SpanID:      ev.SpanID,
		Provider:    ev.Provider,
		Models:      ev.Models,
		Code:        ev.Code,
		Message:     ev.Message,
		Details:     ev.Details,
		Text:        ev.Text,
		MessageID:   ev.MessageID,
		ToolCallID:  ev.ToolCallID,
		ToolName:    ev.ToolName,
		ArgsJSON:    ev.ArgsJSON,
		ResultJSON:  ev.ResultJSON,
		IsError:     ev.IsError,
		Level:       ev.Level,
		Logger:      ev.Logger,
		Fields:      ev.Fields,
		DurationMs:  ev.DurationMs,
		WorldBefore: ev.WorldBefore,
		WorldAfter:  ev.WorldAfter,
		Delta:       ev.Delta,
	}
}
