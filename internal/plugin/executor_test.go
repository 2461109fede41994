package plugin

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ipsix/geopolis/internal/logging"
)

type memoryRecorder struct {
	results []Result
	err     error
}

func (m *memoryRecorder) Record(r Result) error {
	m.results = append(m.results, r)
	return m.err
}

func newExecutorWith(t *testing.T, plugins ...Plugin) (*Executor, *memoryRecorder) {
	t.Helper()
	reg := NewRegistry(NewSettings(nil, nil, nil), logging.New("text"))
	for _, p := range plugins {
		require.NoError(t, reg.Register(p))
	}
	rec := &memoryRecorder{}
	return NewExecutor(reg, rec, logging.New("text")), rec
}

func TestRunUnknownPlugin(t *testing.T) {
	exec, rec := newExecutorWith(t)
	result := exec.Run(context.Background(), "ghost", nil)

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "ghost", result.Plugin)
	assert.Contains(t, result.Message, "ghost")
	assert.Empty(t, result.Data)
	assert.NotNil(t, result.Data)
	assert.Empty(t, rec.results)
}

func TestRunSuccessNormalizesEnvelope(t *testing.T) {
	p := &stubPlugin{id: "water", out: &Output{Data: []Record{{"region": "Nile"}}}}
	exec, _ := newExecutorWith(t, p)

	result := exec.Run(context.Background(), "water", Payload{"region": "africa"})
	require.True(t, result.OK())
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "plugin water completed", result.Message)
	assert.NotNil(t, result.Metrics)
	_, err := time.Parse(time.RFC3339Nano, result.Timestamp)
	assert.NoError(t, err)
	assert.False(t, result.Time().IsZero())
}

func TestRunCatchesErrorsAndPanics(t *testing.T) {
	failing := &stubPlugin{id: "failing", err: errors.New("upstream 503")}
	panicking := &stubPlugin{id: "panicking", panic: true}
	exec, _ := newExecutorWith(t, failing, panicking)

	result := exec.Run(context.Background(), "failing", nil)
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "upstream 503")

	result = exec.Run(context.Background(), "panicking", nil)
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "boom")
	assert.Equal(t, 1, panicking.calls)
}

func TestRunRejectsNonScalarMetrics(t *testing.T) {
	p := &stubPlugin{id: "nested", out: &Output{Metrics: Metrics{"sources": []string{"a"}}}}
	exec, _ := newExecutorWith(t, p)

	result := exec.Run(context.Background(), "nested", nil)
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "sources")
	assert.Empty(t, result.Metrics)
}

func TestRunRejectsNonFiniteNumbers(t *testing.T) {
	cases := map[string]*Output{
		"nan":      {Metrics: Metrics{"ratio": math.NaN()}},
		"inf":      {Metrics: Metrics{"ratio": math.Inf(1)}},
		"neg-inf":  {Metrics: Metrics{"ratio": float32(math.Inf(-1))}},
		"data-nan": {Data: []Record{{"altitude": math.NaN()}}},
	}
	for id, out := range cases {
		exec, _ := newExecutorWith(t, &stubPlugin{id: id, out: out})
		result := exec.Run(context.Background(), id, nil)
		assert.Equal(t, StatusError, result.Status, id)
		assert.Contains(t, result.Message, "finite", id)
	}

	exec, _ := newExecutorWith(t, &stubPlugin{id: "finite", out: &Output{Metrics: Metrics{"ratio": 0.5}}})
	assert.True(t, exec.Run(context.Background(), "finite", nil).OK())
}

func TestRunNilOutputIsSuccess(t *testing.T) {
	exec, _ := newExecutorWith(t, &stubPlugin{id: "empty"})
	result := exec.Run(context.Background(), "empty", nil)
	assert.True(t, result.OK())
	assert.NotNil(t, result.Data)
}

func TestRunPassesEmptyPayloadWhenNil(t *testing.T) {
	var seen Payload
	p := &stubPlugin{id: "echo", onCall: func(p Payload) { seen = p }}
	exec, _ := newExecutorWith(t, p)

	exec.Run(context.Background(), "echo", nil)
	assert.NotNil(t, seen)
}

func TestJournalFailureDoesNotChangeResult(t *testing.T) {
	exec, rec := newExecutorWith(t, &stubPlugin{id: "ok"})
	rec.err = errors.New("disk full")
	assert.True(t, exec.Run(context.Background(), "ok", nil).OK())
}

func TestUnknownIDsNeverSucceed(t *testing.T) {
	exec, _ := newExecutorWith(t, &stubPlugin{id: "known"})
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`[a-z0-9_-]{0,24}`).Draw(t, "id")
		if id == "known" {
			t.Skip("registered id")
		}
		result := exec.Run(context.Background(), id, nil)
		if result.Status != StatusError {
			t.Fatalf("expected error status for %q, got %s", id, result.Status)
		}
		if result.Message == "" {
			t.Fatalf("expected message for %q", id)
		}
	})
}

func TestStatusIsAlwaysSuccessOrError(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mode := rapid.IntRange(0, 3).Draw(t, "mode")
		p := &stubPlugin{id: "p"}
		switch mode {
		case 1:
			p.err = errors.New("failed")
		case 2:
			p.panic = true
		case 3:
			p.out = &Output{Metrics: Metrics{"n": rapid.Float64().Draw(t, "n")}}
		}
		reg := NewRegistry(nil, logging.New("text"))
		if err := reg.Register(p); err != nil {
			t.Fatalf("register: %v", err)
		}
		exec := NewExecutor(reg, nil, logging.New("text"))

		payload := Payload{}
		keys := rapid.SliceOfN(rapid.String(), 0, 5).Draw(t, "keys")
		for _, k := range keys {
			payload[k] = rapid.OneOf(
				rapid.Just[interface{}](nil),
				rapid.Map(rapid.String(), func(s string) interface{} { return s }),
				rapid.Map(rapid.Float64(), func(f float64) interface{} { return f }),
			).Draw(t, "value")
		}

		result := exec.Run(context.Background(), "p", payload)
		switch result.Status {
		case StatusSuccess:
		case StatusError:
			if len(result.Data) != 0 || result.Message == "" {
				t.Fatalf("error result must have empty data and a message: %+v", result)
			}
		default:
			t.Fatalf("unexpected status %q", result.Status)
		}
	})
}

func TestRecordersFanOutAndJoinErrors(t *testing.T) {
	ok := &memoryRecorder{}
	failing := &memoryRecorder{err: errors.New("disk full")}
	err := Recorders{ok, nil, failing}.Record(Result{Plugin: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok.results, 1)
	assert.Len(t, failing.results, 1)
	assert.NoError(t, Recorders{ok}.Record(Result{}))
}
