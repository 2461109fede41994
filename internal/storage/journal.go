package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ipsix/geopolis/internal/plugin"
)

const journalBucket = "journal"

// Journal keeps every execution result keyed by time so that bucket order
// is chronological.
type Journal struct {
	store Store
	now   func() time.Time
}

func NewJournal(store Store) *Journal {
	return &Journal{store: store, now: time.Now}
}

func (j *Journal) Record(result plugin.Result) error {
	at := result.Time()
	if at.IsZero() {
		at = j.now()
	}
	key := fmt.Sprintf("%020d-%s-%s", at.UnixNano(), result.Plugin, randSuffix())
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return j.store.Put(journalBucket, key, raw)
}

// List returns results newest first, optionally filtered by plugin id.
// A non-positive limit returns everything.
func (j *Journal) List(pluginID string, limit int) ([]plugin.Result, error) {
	results := []plugin.Result{}
	err := j.store.ForEach(journalBucket, func(_, value []byte) error {
		var res plugin.Result
		if err := json.Unmarshal(value, &res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		if pluginID == "" || res.Plugin == pluginID {
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return []plugin.Result{}, nil
		}
		return nil, err
	}
	for i, k := 0, len(results)-1; i < k; i, k = i+1, k-1 {
		results[i], results[k] = results[k], results[i]
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// PruneOlderThan deletes entries recorded before cutoff and reports how many went.
func (j *Journal) PruneOlderThan(cutoff time.Time) (int, error) {
	stale := []string{}
	err := j.store.ForEach(journalBucket, func(key, _ []byte) error {
		at, ok := keyTime(string(key))
		if ok && at.Before(cutoff) {
			stale = append(stale, string(key))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := j.store.Delete(journalBucket, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func keyTime(key string) (time.Time, bool) {
	head, _, ok := strings.Cut(key, "-")
	if !ok {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func randSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "0000"
	}
	return hex.EncodeToString(buf)
}
