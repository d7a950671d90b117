package recovery

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 1000
	defaultRetention    = 24 * time.Hour
)

// Record is one captured error. Fields other than Handled, Retried,
// Recovered and RecoveryAction are immutable after creation; those four
// are set once while the same error is being processed.
type Record struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Service   string    `json:"service,omitempty"`
	Operation string    `json:"operation,omitempty"`

	Handled        bool   `json:"handled"`
	Retried        bool   `json:"retried"`
	Recovered      bool   `json:"recovered"`
	RecoveryAction string `json:"recovery_action,omitempty"`
}

// history is the bounded in-process error log. Appends and trims share
// one mutex so they are atomic with respect to each other.
type history struct {
	mu        sync.Mutex
	records   []*Record
	counts    map[string]uint64
	recovered uint64
	retried   uint64
	limit     int
	retention time.Duration
	now       func() time.Time
}

func newHistory(limit int, retention time.Duration, now func() time.Time) *history {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	if now == nil {
		now = time.Now
	}
	return &history{
		counts:    make(map[string]uint64),
		limit:     limit,
		retention: retention,
		now:       now,
	}
}

// append records an error and returns the new record with the lifetime
// count for its type. Overflowing the cap evicts the oldest records.
func (h *history) append(errType, message, service, operation string) (*Record, uint64) {
	rec := &Record{
		ID:        uuid.NewString(),
		Time:      h.now(),
		Type:      errType,
		Message:   message,
		Service:   service,
		Operation: operation,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if over := len(h.records) - h.limit; over > 0 {
		h.records = append(h.records[:0:0], h.records[over:]...)
	}
	h.counts[errType]++
	return rec, h.counts[errType]
}

// markOutcome folds a processed record's flags into the tallies.
func (h *history) markOutcome(rec *Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec.Recovered {
		h.recovered++
	}
	if rec.Retried {
		h.retried++
	}
}

// lifetime returns the total occurrences of an error type. Lifetime
// counts survive record eviction.
func (h *history) lifetime(errType string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[errType]
}

// countSince returns occurrences of errType at or after cutoff.
func (h *history) countSince(errType string, cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Time.Before(cutoff) {
			break
		}
		if h.records[i].Type == errType {
			n++
		}
	}
	return n
}

// recentByType tallies all records at or after cutoff, grouped by type.
func (h *history) recentByType(cutoff time.Time) map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int)
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Time.Before(cutoff) {
			break
		}
		out[h.records[i].Type]++
	}
	return out
}

// evictExpired drops records older than the retention window and
// re-applies the size cap.
func (h *history) evictExpired() int {
	cutoff := h.now().Add(-h.retention)

	h.mu.Lock()
	defer h.mu.Unlock()

	idx := 0
	for idx < len(h.records) && h.records[idx].Time.Before(cutoff) {
		idx++
	}
	if over := len(h.records) - idx - h.limit; over > 0 {
		idx += over
	}
	if idx == 0 {
		return 0
	}
	h.records = append(h.records[:0:0], h.records[idx:]...)
	return idx
}

// snapshot copies the current records, newest last.
func (h *history) snapshot() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Record, len(h.records))
	for i, rec := range h.records {
		out[i] = *rec
	}
	return out
}

func (h *history) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func (h *history) countsByType() map[string]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]uint64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

func (h *history) tallies() (recovered, retried uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recovered, h.retried
}
