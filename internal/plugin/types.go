package plugin

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Plugin is a compiled-in data-source adapter.
type Plugin interface {
	Describe() Descriptor
	Execute(ctx context.Context, payload Payload) (*Output, error)
}

// Factory builds a plugin instance from the shared settings and the options
// found in the plugin's manifest.
type Factory func(settings *Settings, options map[string]interface{}) (Plugin, error)

type Descriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Description  string   `json:"description,omitempty"`
	Path         string   `json:"path"`
	Capabilities []string `json:"capabilities"`
	RequiredKeys []string `json:"required_keys"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Record is one row of a plugin dataset.
type Record map[string]interface{}

// Metrics holds scalar indicators; values must be strings, booleans, numbers or nil.
type Metrics map[string]interface{}

// Output is what a plugin hands back to the executor before normalization.
type Output struct {
	Data    []Record
	Metrics Metrics
	Message string
}

// Result is the normalized envelope returned for every invocation.
type Result struct {
	Status     Status   `json:"status"`
	Plugin     string   `json:"plugin"`
	Timestamp  string   `json:"timestamp"`
	Data       []Record `json:"data"`
	Metrics    Metrics  `json:"metrics"`
	Message    string   `json:"message"`
	DurationMS int64    `json:"duration_ms"`
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Time parses the result timestamp; a zero time is returned when it is malformed.
func (r Result) Time() time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// Recorder receives every normalized result.
type Recorder interface {
	Record(result Result) error
}

// Recorders fans a result out to several recorders and joins their errors.
type Recorders []Recorder

func (rs Recorders) Record(result Result) error {
	var errs *multierror.Error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(result); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
