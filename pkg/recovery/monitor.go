package recovery

import (
	"log/slog"
	"sort"

	"github.com/robfig/cron/v3"
)

// spikeThreshold is the error count over the trailing alert window that
// the sweep reports as a spike.
const spikeThreshold = 50

// topOffenders is how many error types a spike report names.
const topOffenders = 5

// Monitor runs the periodic maintenance sweep over a coordinator's
// error history: spike detection and record eviction.
type Monitor struct {
	coord  *Coordinator
	cron   *cron.Cron
	logger *slog.Logger
}

// NewMonitor builds a Monitor over the coordinator.
func NewMonitor(coord *Coordinator) *Monitor {
	return &Monitor{
		coord:  coord,
		cron:   cron.New(),
		logger: coord.logger,
	}
}

// Start schedules the sweep every minute. Idempotent.
func (m *Monitor) Start() error {
	if _, err := m.cron.AddFunc("@every 1m", m.sweep); err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// sweep scans the trailing window for spikes and evicts expired
// records.
func (m *Monitor) sweep() {
	cutoff := m.coord.now().Add(-alertWindow)
	recent := m.coord.hist.recentByType(cutoff)

	total := 0
	for _, n := range recent {
		total += n
	}
	if total > spikeThreshold {
		type typeCount struct {
			name  string
			count int
		}
		tops := make([]typeCount, 0, len(recent))
		for name, count := range recent {
			tops = append(tops, typeCount{name, count})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].count != tops[j].count {
				return tops[i].count > tops[j].count
			}
			return tops[i].name < tops[j].name
		})
		if len(tops) > topOffenders {
			tops = tops[:topOffenders]
		}

		attrs := make([]any, 0, topOffenders+1)
		attrs = append(attrs, slog.Int("total", total))
		for _, tc := range tops {
			attrs = append(attrs, slog.Int(tc.name, tc.count))
		}
		m.logger.Warn("error rate spike", attrs...)
	}

	if evicted := m.coord.hist.evictExpired(); evicted > 0 {
		m.logger.Debug("error history pruned", slog.Int("evicted", evicted))
	}
}
