// Package audit defines the audit collaborator invoked on every lifecycle
// transition and scheduler activation. Recording is fire-and-forget from the
// caller's perspective: a failing sink must never roll back a committed
// transition, so Recorder methods return nothing.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one audit record. Keep it transport-agnostic so sinks can fan
// out to whatever audit backend the deployment uses.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Actor       string
	Action      string
	Object      string
	Description string
	Metadata    map[string]any
	System      bool
}

// Recorder receives audit entries for user actions and system events.
type Recorder interface {
	// LogUserAction records an actor-driven action against an object.
	LogUserAction(ctx context.Context, actor, action, object, description string, metadata map[string]any)

	// LogSystemEvent records a scheduler- or restore-driven event.
	LogSystemEvent(ctx context.Context, action, object, description string, metadata map[string]any)
}

// ZapRecorder writes audit entries as structured log lines. It is the
// default Recorder; deployments with a dedicated audit service substitute
// their own implementation.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder creates a Recorder backed by the given logger.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger.Named("audit")}
}

// LogUserAction records an actor-driven action.
func (r *ZapRecorder) LogUserAction(_ context.Context, actor, action, object, description string, metadata map[string]any) {
	r.write(actor, action, object, description, metadata, false)
}

// LogSystemEvent records a system-driven event.
func (r *ZapRecorder) LogSystemEvent(_ context.Context, action, object, description string, metadata map[string]any) {
	r.write("system", action, object, description, metadata, true)
}

func (r *ZapRecorder) write(actor, action, object, description string, metadata map[string]any, system bool) {
	r.logger.Info(description,
		zap.String("audit_id", uuid.New().String()),
		zap.String("actor", actor),
		zap.String("action", action),
		zap.String("object", object),
		zap.Bool("system", system),
		zap.Any("metadata", metadata),
	)
}

// MemoryRecorder collects entries for assertions in tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// LogUserAction records an actor-driven action.
func (r *MemoryRecorder) LogUserAction(_ context.Context, actor, action, object, description string, metadata map[string]any) {
	r.append(Entry{Actor: actor, Action: action, Object: object, Description: description, Metadata: metadata})
}

// LogSystemEvent records a system-driven event.
func (r *MemoryRecorder) LogSystemEvent(_ context.Context, action, object, description string, metadata map[string]any) {
	r.append(Entry{Actor: "system", Action: action, Object: object, Description: description, Metadata: metadata, System: true})
}

func (r *MemoryRecorder) append(e Entry) {
	e.ID = uuid.New().String()
	e.Timestamp = time.Now().UTC()
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of all recorded entries.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Entry, len(r.entries))
	copy(result, r.entries)
	return result
}
