// Package monitor runs the continuous drift-monitoring loop: watch the
// tree, queue changes, and on each tick drain a bounded batch through
// detection and alerting while staying inside the configured resource
// envelope.
package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftwatch/driftwatch/internal/alerts"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/drift"
	"github.com/driftwatch/driftwatch/internal/types"
)

// scanErrorThreshold is how many consecutive failures a file needs
// before a scan_error alert is raised
const scanErrorThreshold = 3

// SpecResolver maps watched paths to specifications. specs.Registry
// implements it.
type SpecResolver interface {
	Reload() error
	For(path string) *types.Specification
	Count() int
}

// Alerter receives the alerts the monitor raises. alerts.System
// implements it.
type Alerter interface {
	Raise(ctx context.Context, alert *types.Alert) (*types.Alert, bool, error)
}

// Status is a point-in-time view of the monitor
type Status struct {
	Running        bool      `json:"running"`
	Throttled      bool      `json:"throttled"`
	LastScanAt     time.Time `json:"last_scan_at"`
	LastError      string    `json:"last_error,omitempty"`
	QueueLength    int       `json:"queue_length"`
	DroppedEvents  uint64    `json:"dropped_events"`
	ScansCompleted uint64    `json:"scans_completed"`
	FilesScanned   uint64    `json:"files_scanned"`
	DriftsFound    uint64    `json:"drifts_found"`
	SpecsLoaded    int       `json:"specs_loaded"`
}

// Deps wires the monitor's collaborators
type Deps struct {
	Config    *config.MonitorConfig
	Root      string
	Registry  SpecResolver
	Snapshots SnapshotProvider
	Detector  *drift.Detector
	Alerts    Alerter
	Sampler   Sampler
}

// Monitor owns the watch-queue-scan pipeline. One Monitor per watched
// tree; Start and Stop bracket a session.
type Monitor struct {
	cfg       *config.MonitorConfig
	root      string
	registry  SpecResolver
	snapshots SnapshotProvider
	detector  *drift.Detector
	alerts    Alerter
	sampler   Sampler

	queue   *changeQueue
	watcher *watcher

	mu             sync.Mutex
	running        bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	throttled      bool
	lastScanAt     time.Time
	lastError      string
	scansCompleted uint64
	filesScanned   uint64
	driftsFound    uint64

	// contentHashes gates re-scans of files whose bytes did not change
	contentHashes map[string]string
	// scanFailures counts consecutive detection failures per file
	scanFailures map[string]int
}

// New creates a monitor. The configuration must already be validated;
// New re-validates and refuses to construct on a ConfigError.
func New(deps Deps) (*Monitor, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("spec resolver is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot provider is required")
	}
	if deps.Alerts == nil {
		return nil, fmt.Errorf("alerter is required")
	}
	if deps.Root == "" {
		deps.Root = "."
	}
	if deps.Detector == nil {
		deps.Detector = drift.NewDetector(drift.Options{
			MinConfidence: deps.Config.MinConfidence,
			Weights:       deps.Config.Weights,
			Behavior:      deps.Config.CheckEnabled(config.CheckBehavior),
			Documentation: deps.Config.CheckEnabled(config.CheckDocumentation),
			Dependencies:  deps.Config.CheckEnabled(config.CheckDependencies),
		})
	}
	if deps.Sampler == nil {
		deps.Sampler = NewSampler()
	}

	return &Monitor{
		cfg:           deps.Config,
		root:          deps.Root,
		registry:      deps.Registry,
		snapshots:     deps.Snapshots,
		detector:      deps.Detector,
		alerts:        deps.Alerts,
		sampler:       deps.Sampler,
		queue:         newChangeQueue(deps.Config.QueueSize, deps.Config.Overflow, deps.Config.BatchSize),
		contentHashes: make(map[string]string),
		scanFailures:  make(map[string]int),
	}, nil
}

// Start loads specifications, starts the watcher, and launches the
// scheduling loop. Idempotent: starting a running monitor is an error.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}

	if err := m.registry.Reload(); err != nil {
		return fmt.Errorf("failed to load specifications: %w", err)
	}

	w, err := newWatcher(m.root, m.cfg, m.queue)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	if err := w.Start(loopCtx); err != nil {
		cancel()
		return err
	}

	m.watcher = w
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.schedulingLoop(loopCtx)

	fmt.Printf("Monitor: started (root=%s, interval=%v, specs=%d)\n",
		m.root, m.cfg.ScanInterval, m.registry.Count())
	return nil
}

// Stop cancels the loop, waits for any in-flight scan cycle to finish
// (its alerts are persisted and dispatched normally), and releases the
// watcher. Safe to call twice.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	w := m.watcher
	m.mu.Unlock()

	cancel()
	m.queue.Close()
	if w != nil {
		w.Stop()
	}
	m.wg.Wait()
	fmt.Printf("Monitor: stopped\n")
}

// Status returns a snapshot of the monitor's state
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:        m.running,
		Throttled:      m.throttled,
		LastScanAt:     m.lastScanAt,
		LastError:      m.lastError,
		QueueLength:    m.queue.Len(),
		DroppedEvents:  m.queue.Dropped(),
		ScansCompleted: m.scansCompleted,
		FilesScanned:   m.filesScanned,
		DriftsFound:    m.driftsFound,
		SpecsLoaded:    m.registry.Count(),
	}
}

// schedulingLoop wakes every ScanInterval, or early when the queue
// reaches a full batch, and drains one batch
func (m *Monitor) schedulingLoop(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(m.cfg.ScanInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-m.queue.Pressure():
			if !timer.Stop() {
				<-timer.C
			}
		}
		m.runScanCycle(ctx)
		timer.Reset(m.cfg.ScanInterval)
	}
}

// runScanCycle performs one tick: resource check, drain, detect, alert
func (m *Monitor) runScanCycle(ctx context.Context) {
	sample, err := m.sampler.Sample()
	if err != nil {
		fmt.Printf("Monitor: resource sampling failed, proceeding unthrottled: %v\n", err)
	}

	throttled := sample.CPUPercent > m.cfg.MaxCPUPercent || sample.RSSMB > m.cfg.MaxMemoryMB
	m.mu.Lock()
	m.throttled = throttled
	m.mu.Unlock()

	if throttled {
		// The queue keeps accumulating (bounded); the batch waits for a
		// calmer tick.
		fmt.Printf("Monitor: deferring scan (cpu=%.1f%%, rss=%dMB)\n", sample.CPUPercent, sample.RSSMB)
		return
	}

	batch := m.queue.DrainUpTo(m.cfg.BatchSize)
	if len(batch) == 0 {
		m.finishCycle("", 0, 0)
		return
	}

	var mu sync.Mutex
	var scanned, drifts uint64
	var firstErr error

	// The batch is detached from the loop's cancellation: Stop waits for
	// the in-flight cycle, and alerts computed during it are persisted
	// and dispatched instead of failing on a canceled context.
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(m.cfg.Workers)
	for _, ev := range batch {
		ev := ev
		g.Go(func() error {
			found, err := m.processChange(gctx, ev)
			mu.Lock()
			scanned++
			drifts += found
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			// Per-file errors are contained; the batch continues.
			return nil
		})
	}
	g.Wait()

	errMsg := ""
	if firstErr != nil {
		errMsg = firstErr.Error()
	}
	m.finishCycle(errMsg, scanned, drifts)
}

func (m *Monitor) finishCycle(errMsg string, scanned, drifts uint64) {
	m.mu.Lock()
	m.lastScanAt = time.Now().UTC()
	m.lastError = errMsg
	m.scansCompleted++
	m.filesScanned += scanned
	m.driftsFound += drifts
	m.mu.Unlock()
}

// processChange runs detection for one changed file and raises alerts.
// Returns the number of drift items found.
func (m *Monitor) processChange(ctx context.Context, ev types.ChangeEvent) (uint64, error) {
	spec := m.registry.For(ev.Path)
	if spec == nil {
		return 0, nil
	}

	if ev.Kind != types.ChangeDeleted {
		changed, err := m.contentChanged(ev.Path)
		if err == nil && !changed {
			return 0, nil
		}
	} else {
		m.mu.Lock()
		delete(m.contentHashes, ev.Path)
		m.mu.Unlock()
	}

	snap, err := m.snapshots.Snapshot(ctx, ev.Path)
	if err != nil {
		return 0, m.recordScanFailure(ctx, ev.Path, err)
	}

	report := m.detector.Check(ev.Path, snap, spec)

	m.mu.Lock()
	delete(m.scanFailures, ev.Path)
	m.mu.Unlock()

	if report.Empty() {
		return 0, nil
	}

	if _, _, err := m.alerts.Raise(ctx, alerts.FromReport(report)); err != nil {
		fmt.Printf("Monitor: failed to raise alert for %s: %v\n", ev.Path, err)
	}
	return uint64(len(report.Items)), nil
}

// recordScanFailure counts consecutive failures and escalates to a
// scan_error alert once the threshold is reached
func (m *Monitor) recordScanFailure(ctx context.Context, path string, cause error) error {
	m.mu.Lock()
	m.scanFailures[path]++
	count := m.scanFailures[path]
	m.mu.Unlock()

	fmt.Printf("Monitor: scan failed for %s (attempt %d): %v\n", path, count, cause)
	if count == scanErrorThreshold {
		if _, _, err := m.alerts.Raise(ctx, alerts.ScanError(path, cause)); err != nil {
			fmt.Printf("Monitor: failed to raise scan_error alert for %s: %v\n", path, err)
		}
	}
	return fmt.Errorf("scan failed for %s: %w", path, cause)
}

// contentChanged hashes the file and reports whether its bytes differ
// from the last completed scan
func (m *Monitor) contentChanged(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return true, err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.contentHashes[path] == hash {
		return false, nil
	}
	m.contentHashes[path] = hash
	return true, nil
}

// ReloadSpecs re-reads the specification manifests. Start does this
// implicitly; one-shot scans call it before enqueueing.
func (m *Monitor) ReloadSpecs() error {
	return m.registry.Reload()
}

// Enqueue injects a change event directly, bypassing the watcher. Used
// by the manual scan surface.
func (m *Monitor) Enqueue(ctx context.Context, ev types.ChangeEvent) error {
	return m.queue.Push(ctx, ev)
}

// ScanOnce drains and processes one batch immediately, outside the
// schedule. Respects the same resource limits.
func (m *Monitor) ScanOnce(ctx context.Context) Status {
	m.runScanCycle(ctx)
	return m.Status()
}
