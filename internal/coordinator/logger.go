package coordinator

import "github.com/google/uuid"

// Logger is the injected logging capability (spec.md §9, "Global/singleton
// state": "Logging is a process-wide sink initialized at startup by the
// embedder — the core takes it as an injected interface, not a global.").
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything; it is the default when no Logger is
// supplied.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// correlatedLogger wraps a Logger and prefixes every line with the id of the
// Download call it was built for, so log lines from concurrent downloads
// (or concurrent workers within one download) can be told apart.
type correlatedLogger struct {
	id   uuid.UUID
	next Logger
}

func withCorrelationID(log Logger, id uuid.UUID) Logger {
	return &correlatedLogger{id: id, next: log}
}

func (l *correlatedLogger) Debugf(format string, args ...any) {
	l.next.Debugf("[%s] "+format, prepend(l.id, args)...)
}

func (l *correlatedLogger) Infof(format string, args ...any) {
	l.next.Infof("[%s] "+format, prepend(l.id, args)...)
}

func (l *correlatedLogger) Warnf(format string, args ...any) {
	l.next.Warnf("[%s] "+format, prepend(l.id, args)...)
}

func (l *correlatedLogger) Errorf(format string, args ...any) {
	l.next.Errorf("[%s] "+format, prepend(l.id, args)...)
}

func prepend(id uuid.UUID, args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, id)
	out = append(out, args...)

	return out
}
