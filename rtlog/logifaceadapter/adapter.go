// Package logifaceadapter bridges rtlog.Logger onto
// github.com/joeycumines/logiface, backed by github.com/joeycumines/stumpy's
// zero-alloc JSON event encoder, for callers who want structured,
// high-throughput logging instead of rtlog's plain DefaultLogger.
//
// Grounded on logiface-stumpy/example_test.go's construction pattern.
package logifaceadapter

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/coriolis-labs/corerun/rtlog"
)

// Adapter implements rtlog.Logger by forwarding to a *logiface.Logger[*stumpy.Event].
type Adapter struct {
	logger *logiface.Logger[*stumpy.Event]
	level  rtlog.Level
}

// New builds an Adapter writing stumpy-encoded JSON events to writer,
// filtering below level before ever building a logiface event.
//
// WithStumpy wires the EventFactory/EventReleaser/JSONSupport that make
// a.logger.Build produce a real *stumpy.Event at all; the trailing
// WithWriter then overrides just the sink, per
// logiface-stumpy/example_test.go's WithStumpy-then-WithWriter pattern.
func New(level rtlog.Level, writer logiface.Writer[*stumpy.Event]) *Adapter {
	logger := stumpy.L.New(
		stumpy.L.WithLevel(toLogifaceLevel(level)),
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(writer),
	)
	return &Adapter{logger: logger, level: level}
}

// IsEnabled reports whether level would be logged.
func (a *Adapter) IsEnabled(level rtlog.Level) bool { return level >= a.level }

// Log forwards entry to the underlying logiface.Logger, mapping rtlog's
// category/worker/task/lane fields onto logiface Fields.
func (a *Adapter) Log(entry rtlog.LogEntry) {
	if !a.IsEnabled(entry.Level) {
		return
	}
	b := a.logger.Build(toLogifaceLevel(entry.Level))
	b = b.Str("category", entry.Category)
	if entry.WorkerID != 0 {
		b = b.Int64("worker", entry.WorkerID)
	}
	if entry.TaskID != 0 {
		b = b.Uint64("task", entry.TaskID)
	}
	if entry.LaneID != 0 {
		b = b.Int64("lane", entry.LaneID)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// toLogifaceLevel maps rtlog's five-level scale onto logiface's
// syslog-derived scale. rtlog has no notion of the emergency/alert/
// critical/notice distinctions, so LevelFatal maps to LevelCritical
// (one step short of Emergency, reserved for total process loss) and
// LevelError/LevelWarn/LevelInfo/LevelDebug map onto their same-named
// logiface counterparts.
func toLogifaceLevel(level rtlog.Level) logiface.Level {
	switch level {
	case rtlog.LevelDebug:
		return logiface.LevelDebug
	case rtlog.LevelInfo:
		return logiface.LevelInformational
	case rtlog.LevelWarn:
		return logiface.LevelWarning
	case rtlog.LevelError:
		return logiface.LevelError
	case rtlog.LevelFatal:
		return logiface.LevelCritical
	default:
		return logiface.LevelInformational
	}
}

var _ rtlog.Logger = (*Adapter)(nil)
