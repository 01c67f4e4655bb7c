// Package alerts turns drift reports into persisted, deduplicated
// alerts and fans them out to notification channels.
//
// The pipeline per alert: rule matching -> atomic store upsert (which
// decides suppression) -> rate limit -> concurrent channel dispatch.
// Channel failures are recorded in the alert's delivery log and never
// propagate to the scan that raised the alert.
package alerts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/storage"
	"github.com/driftwatch/driftwatch/internal/types"
)

// Fingerprint computes the stable identity of an alert: same type, file,
// spec and drift types means the same ongoing problem.
func Fingerprint(alertType types.AlertType, filePath, specRef string, driftTypes ...types.DriftType) string {
	names := make([]string, len(driftTypes))
	for i, dt := range driftTypes {
		names[i] = string(dt)
	}
	sort.Strings(names)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", alertType, filePath, specRef, strings.Join(names, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// FromReport builds a drift alert from a non-empty report
func FromReport(report *types.DriftReport) *types.Alert {
	counts := report.CountByType()
	driftTypes := make([]types.DriftType, 0, len(counts))
	for dt := range counts {
		driftTypes = append(driftTypes, dt)
	}

	var lines []string
	for _, item := range report.Items {
		lines = append(lines, fmt.Sprintf("- [%s] %s", item.Severity, item.Description))
	}

	return &types.Alert{
		ID:       uuid.New().String(),
		Type:     types.AlertTypeDrift,
		Severity: types.AlertSeverityFor(report.MaxSeverity()),
		Title:    fmt.Sprintf("drift detected in %s (%d finding(s))", report.FilePath, len(report.Items)),
		Message:  strings.Join(lines, "\n"),
		Context: map[string]string{
			"file": report.FilePath,
			"spec": report.SpecRef,
		},
		Fingerprint: Fingerprint(types.AlertTypeDrift, report.FilePath, report.SpecRef, driftTypes...),
	}
}

// ScanError builds an alert for a file whose detection keeps failing
func ScanError(filePath string, err error) *types.Alert {
	return &types.Alert{
		ID:          uuid.New().String(),
		Type:        types.AlertTypeScanError,
		Severity:    types.AlertWarning,
		Title:       fmt.Sprintf("scan failing for %s", filePath),
		Message:     err.Error(),
		Context:     map[string]string{"file": filePath},
		Fingerprint: Fingerprint(types.AlertTypeScanError, filePath, ""),
	}
}

// System is the alert pipeline. Safe for concurrent use.
type System struct {
	store    storage.Storage
	channels map[string]Channel
	rules    []config.Rule
	timeout  time.Duration

	mu       sync.Mutex
	limiters map[types.AlertType]*rate.Limiter
	ratePerM int
}

// Deps wires the system's collaborators
type Deps struct {
	Store    storage.Storage
	Channels []Channel
	Config   config.AlertConfig
}

// NewSystem creates the alert system. At least a store is required;
// running without channels persists alerts silently.
func NewSystem(deps Deps) (*System, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("alert store is required")
	}

	channels := make(map[string]Channel, len(deps.Channels))
	for _, ch := range deps.Channels {
		if _, dup := channels[ch.Name()]; dup {
			return nil, fmt.Errorf("duplicate channel name: %s", ch.Name())
		}
		channels[ch.Name()] = ch
	}

	rules := deps.Config.Rules
	if len(rules) == 0 {
		rules = config.DefaultRules()
	}
	for i, r := range rules {
		for _, name := range r.Channels {
			if _, ok := channels[name]; !ok {
				return nil, fmt.Errorf("rule %d references unknown channel %q", i, name)
			}
		}
	}

	timeout := deps.Config.ChannelTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &System{
		store:    deps.Store,
		channels: channels,
		rules:    rules,
		timeout:  timeout,
		limiters: make(map[types.AlertType]*rate.Limiter),
		ratePerM: deps.Config.RatePerMinute,
	}, nil
}

// Raise persists the alert and dispatches it to matching channels.
// Returns the stored alert and whether notifications went out (false
// when suppressed, rate limited, or no rule matched).
func (s *System) Raise(ctx context.Context, alert *types.Alert) (*types.Alert, bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if err := alert.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid alert: %w", err)
	}

	channelNames, window := s.match(alert)

	stored, _, suppressed, err := s.store.UpsertAlert(ctx, alert, window)
	if err != nil {
		return nil, false, fmt.Errorf("failed to persist alert: %w", err)
	}

	if suppressed {
		fmt.Printf("AlertSystem: suppressed repeat of %s (occurrence %d)\n", stored.Fingerprint, stored.OccurrenceCount)
		return stored, false, nil
	}
	if len(channelNames) == 0 {
		return stored, false, nil
	}
	if !s.allow(stored.Type) {
		fmt.Printf("AlertSystem: rate limit reached for type %s, skipping dispatch of %s\n", stored.Type, stored.ID)
		return stored, false, nil
	}

	results := s.dispatch(ctx, stored, channelNames)

	// Re-deliveries merge into the existing log rather than erasing the
	// first delivery's record.
	if stored.DeliveryLog == nil {
		stored.DeliveryLog = make(map[string]types.DeliveryResult, len(results))
	}
	for name, res := range results {
		stored.DeliveryLog[name] = res
	}
	if err := s.store.SetDeliveryLog(ctx, stored.ID, stored.DeliveryLog); err != nil {
		fmt.Printf("AlertSystem: failed to record delivery log for %s: %v\n", stored.ID, err)
	}

	return stored, true, nil
}

// match returns the union of channels across matching rules and the
// longest matching suppression window
func (s *System) match(alert *types.Alert) ([]string, time.Duration) {
	seen := make(map[string]bool)
	var names []string
	var window time.Duration

	for _, r := range s.rules {
		if r.Type != "" && r.Type != alert.Type {
			continue
		}
		if r.MinSeverity != "" && !alert.Severity.AtLeast(r.MinSeverity) {
			continue
		}
		for _, name := range r.Channels {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		w := r.SuppressionWindow
		if w == 0 {
			w = 5 * time.Minute
		}
		if w > window {
			window = w
		}
	}
	sort.Strings(names)
	return names, window
}

// allow applies the per-type rate limit
func (s *System) allow(alertType types.AlertType) bool {
	if s.ratePerM <= 0 {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.limiters[alertType]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.ratePerM)), s.ratePerM)
		s.limiters[alertType] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// dispatch delivers to every channel concurrently. Each attempt gets
// its own timeout and its own result; a panic in one channel is
// recorded as a failure, not propagated.
func (s *System) dispatch(ctx context.Context, alert *types.Alert, channelNames []string) map[string]types.DeliveryResult {
	results := make(map[string]types.DeliveryResult, len(channelNames))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range channelNames {
		ch, ok := s.channels[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			chCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			start := time.Now()
			err := deliverSafely(chCtx, ch, alert)
			res := types.DeliveryResult{
				Channel:     ch.Name(),
				Success:     err == nil,
				Duration:    time.Since(start),
				DeliveredAt: time.Now().UTC(),
			}
			if err != nil {
				res.Reason = err.Error()
				fmt.Printf("AlertSystem: channel %s failed for alert %s: %v\n", ch.Name(), alert.ID, err)
			}

			mu.Lock()
			results[ch.Name()] = res
			mu.Unlock()
		}(ch)
	}

	wg.Wait()
	return results
}

func deliverSafely(ctx context.Context, ch Channel, alert *types.Alert) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("channel panicked: %v", r)
			}
		}()
		done <- ch.Deliver(ctx, alert)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("delivery timed out: %w", ctx.Err())
	}
}

// Resolve marks an alert resolved. Idempotent.
func (s *System) Resolve(ctx context.Context, id, note string) error {
	return s.store.ResolveAlert(ctx, id, note)
}

// List returns alerts matching the filter, newest first
func (s *System) List(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	return s.store.ListAlerts(ctx, filter)
}

// Get fetches one alert by id
func (s *System) Get(ctx context.Context, id string) (*types.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// Summary aggregates the store
func (s *System) Summary(ctx context.Context) (*types.AlertSummary, error) {
	return s.store.Summary(ctx)
}

// ChannelsFromConfig builds the channel set the configuration enables.
// Log and console are always available; file, webhook and email join
// when configured.
func ChannelsFromConfig(cfg config.AlertConfig) []Channel {
	channels := []Channel{
		NewLogChannel(nil),
		NewConsoleChannel(nil),
	}
	if cfg.AlertFile != "" {
		channels = append(channels, NewFileChannel(cfg.AlertFile))
	}
	if cfg.Webhook.URL != "" {
		channels = append(channels, NewWebhookChannel(cfg.Webhook.URL, cfg.Webhook.Headers))
	}
	if cfg.Email.Host != "" {
		channels = append(channels, NewEmailChannel(
			cfg.Email.Host, cfg.Email.Port, cfg.Email.From, cfg.Email.To,
			cfg.Email.Username, cfg.Email.Password, cfg.Email.StartTLS))
	}
	return channels
}
