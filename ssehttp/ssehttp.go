// Package ssehttp adapts an agent event stream to the server-sent-events
// wire format external consumers expect: one frame per AgentEvent,
// periodic keepalive pings, and a terminal "done" frame once the
// stream ends. The event-name mapping follows the agent-event-stream
// table: Status-like events become "status", the trace-shaped events
// (tool dispatch/completion/failure) become "trace", a completed run
// becomes "answer", and a terminal failure becomes "error".
package ssehttp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kestrelai/agentgraph/agent"
	"github.com/kestrelai/agentgraph/graph"
)

// Event name constants written on the SSE "event:" line.
const (
	sseStatus = "status"
	sseTrace  = "trace"
	sseAnswer = "answer"
	sseError  = "error"
	ssePing   = "ping"
	sseDone   = "done"
)

// DefaultKeepAlive is how often Handler writes a ping frame while
// waiting for the next AgentEvent, so intermediaries do not close an
// idle connection.
const DefaultKeepAlive = 15 * time.Second

// Handler tails Events and writes it to an http.ResponseWriter as a
// text/event-stream. One Handler serves exactly one stream: construct
// a fresh Handler (or at least a fresh Events channel) per request.
type Handler struct {
	// Events is read until it is closed or a terminal AgentEvent
	// (Completed, Interrupted or StepFailed) is observed.
	Events <-chan graph.AgentEvent

	// KeepAlive overrides DefaultKeepAlive if non-zero.
	KeepAlive time.Duration

	// Logger receives write/flush failures. Defaults to log.Default().
	Logger *log.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-h.Events:
			if !open {
				h.writeFrame(w, sseDone, nil)
				flusher.Flush()
				return
			}
			h.writeFrame(w, eventName(ev.Kind), ev.Payload)
			flusher.Flush()
			if isTerminal(ev.Kind) {
				h.writeFrame(w, sseDone, nil)
				flusher.Flush()
				return
			}
		case <-ticker.C:
			h.writeFrame(w, ssePing, nil)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) writeFrame(w http.ResponseWriter, event string, payload any) {
	if payload == nil {
		fmt.Fprintf(w, "event: %s\ndata: {}\n\n", event)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger().Printf("ssehttp: encoding %s payload: %v", event, err)
		fmt.Fprintf(w, "event: %s\ndata: {}\n\n", event)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func (h *Handler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

// eventName maps an agent event kind onto its SSE event name.
func eventName(kind string) string {
	switch kind {
	case agent.EventStepStarted:
		return sseStatus
	case agent.EventToolDispatched, agent.EventToolCompleted, agent.EventToolFailed:
		return sseTrace
	case agent.EventCompleted:
		return sseAnswer
	case agent.EventStepFailed:
		return sseError
	case agent.EventInterrupted:
		return sseStatus
	default:
		return sseTrace
	}
}

// isTerminal reports whether kind ends the stream (after which a done
// frame is written and the handler returns). EventStepFailed is
// terminal too: the runtime never emits another event after it, since
// a failed step that the policy did not recover from ends Runtime.Run.
func isTerminal(kind string) bool {
	switch kind {
	case agent.EventCompleted, agent.EventInterrupted, agent.EventStepFailed:
		return true
	default:
		return false
	}
}
