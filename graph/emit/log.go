// Package emit provides event emission and observability for graph execution.
package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes each event as a line of text or JSON to an
// io.Writer. Text mode is for a human at a terminal; JSON mode writes
// JSONL, one event per line, for a log shipper to pick up.
//
//	[node_exit] runID=run-001 step=1 nodeID=A meta={"duration_ms":3}
//	{"runID":"run-001","step":1,"nodeID":"A","kind":"node_exit","msg":"node_exit","meta":{"duration_ms":3}}
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter writes to writer, defaulting to os.Stdout if nil.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID  string                 `json:"runID"`
		Step   int                    `json:"step"`
		NodeID string                 `json:"nodeID"`
		Kind   Kind                   `json:"kind"`
		Msg    string                 `json:"msg"`
		Meta   map[string]interface{} `json:"meta"`
	}{
		RunID:  event.RunID,
		Step:   event.Step,
		NodeID: event.NodeID,
		Kind:   event.Kind,
		Msg:    event.Msg,
		Meta:   event.Meta,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

// emitText prefixes the line with Kind rather than Msg: Kind is the
// value callers branch on, Msg is a free-text duplicate of it for
// emitters that predate Kind.
func (l *LogEmitter) emitText(event Event) {
	prefix := string(event.Kind)
	if prefix == "" {
		prefix = event.Msg
	}
	_, _ = fmt.Fprintf(l.writer, "[%s] runID=%s step=%d nodeID=%s",
		prefix, event.RunID, event.Step, event.NodeID)

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes every event in order, one write per event; there is
// no internal buffering to amortize across the batch.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously and keeps no
// internal buffer. Provided to satisfy Emitter alongside emitters
// (OTelEmitter) that do buffer.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}
