package plugin

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/ipsix/geopolis/internal/logging"
)

type Executor struct {
	registry *Registry
	recorder Recorder
	logger   *logging.Logger
	now      func() time.Time
}

// NewExecutor returns an executor over registry. recorder may be nil.
func NewExecutor(registry *Registry, recorder Recorder, logger *logging.Logger) *Executor {
	return &Executor{
		registry: registry,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run invokes the plugin registered under id exactly once and always returns a
// normalized result; plugin errors and panics become error results.
func (e *Executor) Run(ctx context.Context, id string, payload Payload) Result {
	if payload == nil {
		payload = Payload{}
	}
	started := e.now()

	p, _, err := e.registry.Get(id)
	if err != nil {
		// Unknown ids are client input; they are logged but never recorded.
		result := e.failure(id, started, fmt.Sprintf("plugin %q not found", id))
		e.logger.Warn("plugin lookup failed", logging.Field{Key: "plugin", Value: id})
		return result
	}

	out, err := e.invoke(ctx, p, payload)
	var result Result
	switch {
	case err != nil:
		result = e.failure(id, started, fmt.Sprintf("plugin %s failed: %v", id, err))
		e.logger.Error("plugin execution failed",
			logging.Field{Key: "plugin", Value: id},
			logging.Field{Key: "error", Value: err.Error()},
		)
	default:
		result, err = e.success(id, started, out)
		if err != nil {
			result = e.failure(id, started, fmt.Sprintf("plugin %s returned malformed output: %v", id, err))
			e.logger.Error("plugin output rejected",
				logging.Field{Key: "plugin", Value: id},
				logging.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	e.logger.Info("plugin executed",
		logging.Field{Key: "plugin", Value: id},
		logging.Field{Key: "status", Value: result.Status},
		logging.Field{Key: "records", Value: len(result.Data)},
		logging.Field{Key: "duration_ms", Value: result.DurationMS},
	)
	e.record(result)
	return result
}

func (e *Executor) invoke(ctx context.Context, p Plugin, payload Payload) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("plugin panic recovered",
				logging.Field{Key: "panic", Value: fmt.Sprint(r)},
				logging.Field{Key: "stack", Value: string(debug.Stack())},
			)
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Execute(ctx, payload)
}

func (e *Executor) success(id string, started time.Time, out *Output) (Result, error) {
	if out == nil {
		out = &Output{}
	}
	data := make([]Record, 0, len(out.Data))
	for i, rec := range out.Data {
		if rec == nil {
			return Result{}, fmt.Errorf("record %d is nil", i)
		}
		for k, v := range rec {
			if f, ok := v.(float64); ok && !isFinite(f) {
				return Result{}, fmt.Errorf("record %d field %q is not finite", i, k)
			}
		}
		data = append(data, rec)
	}
	metrics := Metrics{}
	for k, v := range out.Metrics {
		if !isScalar(v) {
			return Result{}, fmt.Errorf("metric %q is not a finite scalar (%T)", k, v)
		}
		metrics[k] = v
	}
	msg := out.Message
	if msg == "" {
		msg = fmt.Sprintf("plugin %s completed", id)
	}
	finished := e.now()
	return Result{
		Status:     StatusSuccess,
		Plugin:     id,
		Timestamp:  finished.UTC().Format(time.RFC3339Nano),
		Data:       data,
		Metrics:    metrics,
		Message:    msg,
		DurationMS: finished.Sub(started).Milliseconds(),
	}, nil
}

func (e *Executor) failure(id string, started time.Time, msg string) Result {
	finished := e.now()
	return Result{
		Status:     StatusError,
		Plugin:     id,
		Timestamp:  finished.UTC().Format(time.RFC3339Nano),
		Data:       []Record{},
		Metrics:    Metrics{},
		Message:    msg,
		DurationMS: finished.Sub(started).Milliseconds(),
	}
}

func (e *Executor) record(result Result) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(result); err != nil {
		e.logger.Warn("journal write failed",
			logging.Field{Key: "plugin", Value: result.Plugin},
			logging.Field{Key: "error", Value: err.Error()},
		)
	}
}

func isScalar(v interface{}) bool {
	switch n := v.(type) {
	case float32:
		return isFinite(float64(n))
	case float64:
		return isFinite(n)
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// isFinite rejects values encoding/json cannot represent.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
