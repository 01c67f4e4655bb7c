package monitor

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ResourceSample is one observation of the process's resource usage
type ResourceSample struct {
	CPUPercent float64
	RSSMB      int
}

// Sampler reports process resource usage. The monitor consults it
// before each scan cycle and defers scans while usage is above the
// configured limits. Injectable so throttling is testable.
type Sampler interface {
	Sample() (ResourceSample, error)
}

// procSampler reads /proc/self on Linux. On platforms without /proc it
// degrades to Go runtime memory stats with CPU reported as zero, which
// effectively disables CPU throttling there.
type procSampler struct {
	mu          sync.Mutex
	lastJiffies uint64
	lastSample  time.Time
}

// NewSampler returns the default process sampler
func NewSampler() Sampler {
	return &procSampler{}
}

// userHZ is the kernel's jiffy rate for /proc accounting. Linux fixes
// this at 100 for userspace regardless of the build-time HZ.
const userHZ = 100

func (s *procSampler) Sample() (ResourceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := ResourceSample{RSSMB: rssFromRuntime()}

	statData, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return sample, nil
	}

	jiffies, err := parseCPUJiffies(string(statData))
	if err != nil {
		return sample, nil
	}

	now := time.Now()
	if !s.lastSample.IsZero() {
		elapsed := now.Sub(s.lastSample).Seconds()
		if elapsed > 0 && jiffies >= s.lastJiffies {
			cpuSeconds := float64(jiffies-s.lastJiffies) / userHZ
			sample.CPUPercent = cpuSeconds / elapsed * 100
		}
	}
	s.lastJiffies = jiffies
	s.lastSample = now

	if rss, err := readRSSMB(); err == nil {
		sample.RSSMB = rss
	}
	return sample, nil
}

// parseCPUJiffies extracts utime+stime from /proc/self/stat. The comm
// field can contain spaces and parentheses, so fields are counted from
// the closing paren.
func parseCPUJiffies(stat string) (uint64, error) {
	end := strings.LastIndexByte(stat, ')')
	if end < 0 {
		return 0, fmt.Errorf("malformed stat line")
	}
	fields := strings.Fields(stat[end+1:])
	// After comm: field 0 is state; utime and stime are fields 11 and 12
	if len(fields) < 13 {
		return 0, fmt.Errorf("stat line too short: %d fields", len(fields))
	}
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad utime: %w", err)
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad stime: %w", err)
	}
	return utime + stime, nil
}

// readRSSMB reads resident set size from /proc/self/statm
func readRSSMB() (int, error) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, fmt.Errorf("statm too short")
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return int(pages * uint64(os.Getpagesize()) / (1024 * 1024)), nil
}

func rssFromRuntime() int {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int(ms.HeapInuse+ms.StackInuse) / (1024 * 1024)
}
