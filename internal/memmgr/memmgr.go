// Package memmgr monitors system and process memory so the Parallel Document
// Processor can degrade batch sizing before memory pressure causes a crash.
package memmgr

import (
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"latex-translator/internal/logger"
)

const (
	// DefaultWarningThreshold is the percent-used level at which Manager
	// starts logging warnings and becomes willing to clean up.
	DefaultWarningThreshold = 80.0
	// DefaultCriticalThreshold is the percent-used level at which
	// CheckMemoryAvailable reports memory as unavailable.
	DefaultCriticalThreshold = 90.0
)

// Info is a point-in-time snapshot of system memory.
type Info struct {
	TotalGB     float64
	AvailableGB float64
	UsedGB      float64
	FreeGB      float64
	Percent     float64
}

// ProcessInfo is a point-in-time snapshot of this process's memory.
type ProcessInfo struct {
	RSSMB      float64
	VMSMB      float64
	Percent    float64
	NumThreads int32
}

// Manager samples system/process memory and advises or forces cleanup
// between Parallel Document Processor batches.
type Manager struct {
	warningThreshold  float64
	criticalThreshold float64
	mu                sync.Mutex
}

// New creates a Manager with the given warning/critical percent thresholds.
func New(warningThreshold, criticalThreshold float64) *Manager {
	m := &Manager{warningThreshold: warningThreshold, criticalThreshold: criticalThreshold}

	if info, err := m.GetMemoryInfo(); err == nil {
		logger.Info("memory manager initialized",
			logger.Float64("totalGB", info.TotalGB),
			logger.Float64("warningThreshold", warningThreshold),
			logger.Float64("criticalThreshold", criticalThreshold))
	}
	return m
}

// GetMemoryInfo returns the current system memory snapshot.
func (m *Manager) GetMemoryInfo() (Info, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return Info{}, err
	}
	const gb = 1024 * 1024 * 1024
	return Info{
		TotalGB:     float64(v.Total) / gb,
		AvailableGB: float64(v.Available) / gb,
		UsedGB:      float64(v.Used) / gb,
		FreeGB:      float64(v.Free) / gb,
		Percent:     v.UsedPercent,
	}, nil
}

// GetProcessMemoryInfo returns the current process's memory snapshot.
func (m *Manager) GetProcessMemoryInfo() (ProcessInfo, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessInfo{}, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ProcessInfo{}, err
	}
	percent, err := proc.MemoryPercent()
	if err != nil {
		return ProcessInfo{}, err
	}
	numThreads, err := proc.NumThreads()
	if err != nil {
		numThreads = 0
	}
	const mb = 1024 * 1024
	return ProcessInfo{
		RSSMB:      float64(memInfo.RSS) / mb,
		VMSMB:      float64(memInfo.VMS) / mb,
		Percent:    float64(percent),
		NumThreads: numThreads,
	}, nil
}

// CheckMemoryAvailable reports whether it is safe to schedule more work.
// requiredMB, if positive, also checks that enough memory is free for a
// specific allocation. Crossing criticalThreshold always returns false.
func (m *Manager) CheckMemoryAvailable(requiredMB float64) bool {
	info, err := m.GetMemoryInfo()
	if err != nil {
		logger.Warn("failed to read memory info, assuming available", logger.Err(err))
		return true
	}

	if info.Percent >= m.criticalThreshold {
		logger.Warn("memory usage at critical level", logger.Float64("percent", info.Percent))
		return false
	}

	if requiredMB > 0 {
		availableMB := info.AvailableGB * 1024
		if availableMB < requiredMB {
			logger.Warn("insufficient available memory",
				logger.Float64("requiredMB", requiredMB), logger.Float64("availableMB", availableMB))
			return false
		}
	}

	if info.Percent >= m.warningThreshold {
		logger.Warn("memory usage elevated", logger.Float64("percent", info.Percent))
	}

	return true
}

// CleanupIfNeeded forces a GC cycle when memory usage is at or above
// warningThreshold, or always when force is true. Returns whether cleanup ran.
func (m *Manager) CleanupIfNeeded(force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, err := m.GetMemoryInfo()
	if err != nil {
		return false
	}

	if !force && before.Percent < m.warningThreshold {
		return false
	}

	logger.Info("running memory cleanup", logger.Float64("percentBefore", before.Percent))
	runtime.GC()

	after, err := m.GetMemoryInfo()
	if err == nil {
		freedGB := before.UsedGB - after.UsedGB
		logger.Info("memory cleanup complete",
			logger.Float64("freedGB", freedGB), logger.Float64("percentAfter", after.Percent))
	}
	return true
}

// LogStatus logs a combined system+process memory snapshot, with an optional
// prefix identifying the calling stage.
func (m *Manager) LogStatus(prefix string) {
	sys, err := m.GetMemoryInfo()
	if err != nil {
		return
	}
	proc, err := m.GetProcessMemoryInfo()
	if err != nil {
		return
	}
	logger.Info(prefix+"memory status",
		logger.Float64("systemPercent", sys.Percent),
		logger.Float64("systemUsedGB", sys.UsedGB),
		logger.Float64("systemTotalGB", sys.TotalGB),
		logger.Float64("processRSSMB", proc.RSSMB),
		logger.Float64("processPercent", proc.Percent),
		logger.Int("numThreads", int(proc.NumThreads)))
}

// EstimatePageMemoryUsage estimates the MB of memory needed to process one
// rasterized page: image bytes (width*height*3 channels) times 3 for
// processing overhead, plus a fixed 100MB for model-inference overhead.
func EstimatePageMemoryUsage(pageWidth, pageHeight int) float64 {
	imageMemory := float64(pageWidth) * float64(pageHeight) * 3
	processingMemory := imageMemory * 3
	const mb = 1024 * 1024
	return (processingMemory / mb) + 100
}

// WarningThreshold returns the configured warning threshold percent.
func (m *Manager) WarningThreshold() float64 { return m.warningThreshold }

// CriticalThreshold returns the configured critical threshold percent.
func (m *Manager) CriticalThreshold() float64 { return m.criticalThreshold }
