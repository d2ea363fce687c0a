package simulation

import (
	"io"
	"maps"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/pool"
)

// Report summarizes a simulation run.
type Report struct {
	RunID     string           `json:"run_id"`
	Seed      uint64           `json:"seed"`
	Frames    int              `json:"frames"`
	Cancelled bool             `json:"cancelled"`
	StartedAt time.Time        `json:"started_at"`
	ElapsedMS float64          `json:"elapsed_ms"`
	Pools     []TemplateReport `json:"pools"`
	Returns   ReturnReport     `json:"returns"`
	Strays    int              `json:"strays"`
	Process   *ProcessReport   `json:"process,omitempty"`
}

// TemplateReport is the accounting of one template's pool.
type TemplateReport struct {
	pool.Stats
	PeakActive   int            `json:"peak_active"`
	Acquisitions map[string]int `json:"acquisitions"`
	Returns      int            `json:"returns"`
	Disposals    map[string]int `json:"disposals"`
}

// ReturnReport counts the scheduled returns of the run.
type ReturnReport struct {
	Scheduled int `json:"scheduled"`
	Returned  int `json:"returned"`
	// Stale returns named a retrieval that had already ended.
	Stale   int `json:"stale"`
	Pending int `json:"pending"`
}

// ProcessReport is the resource usage of the process at report time.
type ProcessReport struct {
	PID        int32  `json:"pid"`
	RSSBytes   uint64 `json:"rss_bytes"`
	VMSBytes   uint64 `json:"vms_bytes"`
	NumThreads int32  `json:"num_threads"`
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode report")
	}
	return nil
}

// Template returns the report of template name.
func (r *Report) Template(name string) (TemplateReport, bool) {
	for _, t := range r.Pools {
		if t.Template == name {
			return t, true
		}
	}
	return TemplateReport{}, false
}

func collectProcess() (*ProcessReport, error) {
	pid := int32(os.Getpid()) //nolint:gosec // pids fit in int32
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to inspect process")
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read process memory")
	}
	threads, err := p.NumThreads()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read process threads")
	}
	return &ProcessReport{
		PID:        pid,
		RSSBytes:   mem.RSS,
		VMSBytes:   mem.VMS,
		NumThreads: threads,
	}, nil
}

// tally keeps per-template pool accounting for the report and forwards
// every call to next.
type tally struct {
	next         pool.Observer
	acquisitions map[string]map[string]int
	returns      map[string]int
	disposals    map[string]map[string]int
	peakActive   map[string]int
}

func newTally(next pool.Observer) *tally {
	return &tally{
		next:         next,
		acquisitions: make(map[string]map[string]int),
		returns:      make(map[string]int),
		disposals:    make(map[string]map[string]int),
		peakActive:   make(map[string]int),
	}
}

func (t *tally) Acquired(template, outcome string) {
	bump(t.acquisitions, template, outcome)
	if t.next != nil {
		t.next.Acquired(template, outcome)
	}
}

func (t *tally) Returned(template string) {
	t.returns[template]++
	if t.next != nil {
		t.next.Returned(template)
	}
}

func (t *tally) Disposed(template, reason string) {
	bump(t.disposals, template, reason)
	if t.next != nil {
		t.next.Disposed(template, reason)
	}
}

func (t *tally) Counts(template string, populated, active, idle int) {
	t.peakActive[template] = max(t.peakActive[template], active)
	if t.next != nil {
		t.next.Counts(template, populated, active, idle)
	}
}

func (t *tally) template(s pool.Stats) TemplateReport {
	return TemplateReport{
		Stats:        s,
		PeakActive:   t.peakActive[s.Template],
		Acquisitions: copyCounts(t.acquisitions[s.Template]),
		Returns:      t.returns[s.Template],
		Disposals:    copyCounts(t.disposals[s.Template]),
	}
}

func bump(m map[string]map[string]int, template, key string) {
	inner, ok := m[template]
	if !ok {
		inner = make(map[string]int)
		m[template] = inner
	}
	inner[key]++
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return maps.Clone(m)
}
