package infra

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/procfs"

	"fronteira/middleware/sentinela/domain"
)

var _ domain.SystemStatus = (*ProcfsSystemStatus)(nil)

// ProcfsSystemStatus lê /proc/loadavg e /proc/stat periodicamente.
// Em sistemas sem procfs os valores ficam em -1 (regra de sistema ignora).
type ProcfsSystemStatus struct {
	fs    procfs.FS
	fsErr error
	every time.Duration
	clk   clock.Clock

	mu       sync.RWMutex
	load     float64
	cpuUsage float64

	prevBusy  float64
	prevTotal float64
}

type SystemStatusOption func(*ProcfsSystemStatus)

func WithSampleEvery(d time.Duration) SystemStatusOption {
	return func(s *ProcfsSystemStatus) { s.every = d }
}

func WithStatusClock(clk clock.Clock) SystemStatusOption {
	return func(s *ProcfsSystemStatus) { s.clk = clk }
}

// WithProcMount troca o diretório do procfs (útil em testes com fixtures).
func WithProcMount(mount string) SystemStatusOption {
	return func(s *ProcfsSystemStatus) { s.fs, s.fsErr = procfs.NewFS(mount) }
}

func NewProcfsSystemStatus(opts ...SystemStatusOption) *ProcfsSystemStatus {
	s := &ProcfsSystemStatus{every: time.Second, clk: clock.New(), load: -1, cpuUsage: -1}
	s.fs, s.fsErr = procfs.NewDefaultFS()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ProcfsSystemStatus) Load() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load
}

func (s *ProcfsSystemStatus) CPUUsage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpuUsage
}

// Sample lê uma amostra. O uso de CPU só aparece a partir da segunda amostra.
func (s *ProcfsSystemStatus) Sample() error {
	if s.fsErr != nil {
		return s.fsErr
	}
	avg, err := s.fs.LoadAvg()
	if err != nil {
		return err
	}
	st, err := s.fs.Stat()
	if err != nil {
		return err
	}

	c := st.CPUTotal
	idle := c.Idle + c.Iowait
	busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	total := idle + busy

	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = avg.Load1
	if s.prevTotal > 0 && total > s.prevTotal {
		s.cpuUsage = (busy - s.prevBusy) / (total - s.prevTotal)
	}
	s.prevBusy, s.prevTotal = busy, total
	return nil
}

// Start amostra até o contexto ser cancelado. Falhas apenas mantêm o último valor.
func (s *ProcfsSystemStatus) Start(ctx context.Context) {
	if s.every <= 0 {
		return
	}
	_ = s.Sample()
	t := s.clk.Ticker(s.every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = s.Sample()
			}
		}
	}()
}

// StaticSystemStatus devolve valores fixos (testes e ambientes sem procfs).
type StaticSystemStatus struct {
	mu       sync.RWMutex
	load     float64
	cpuUsage float64
}

func NewStaticSystemStatus(load, cpuUsage float64) *StaticSystemStatus {
	return &StaticSystemStatus{load: load, cpuUsage: cpuUsage}
}

func (s *StaticSystemStatus) Set(load, cpuUsage float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load, s.cpuUsage = load, cpuUsage
}

func (s *StaticSystemStatus) Load() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load
}

func (s *StaticSystemStatus) CPUUsage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cpuUsage
}
