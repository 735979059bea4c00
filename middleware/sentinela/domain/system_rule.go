package domain

import "fmt"

// SystemRule protege o processo inteiro (só tráfego Inbound).
//
// Cada limiar só vale quando > 0; zero ou negativo desliga a checagem.
// Várias regras carregadas juntas se combinam pelo menor valor de cada limiar.
type SystemRule struct {
	HighestSystemLoad float64 `json:"highestSystemLoad,omitempty" yaml:"highestSystemLoad,omitempty"`
	// HighestCPUUsage em [0,1].
	HighestCPUUsage float64 `json:"highestCpuUsage,omitempty" yaml:"highestCpuUsage,omitempty"`
	QPS             float64 `json:"qps,omitempty" yaml:"qps,omitempty"`
	AvgRT           int64   `json:"avgRt,omitempty" yaml:"avgRt,omitempty"`
	MaxConcurrency  int64   `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
}

func (r SystemRule) ResourceName() string { return "" }

func (r SystemRule) Validate() error {
	if r.HighestCPUUsage > 1 {
		return fmt.Errorf("%w: system: highestCpuUsage must be in [0,1], got %v", ErrInvalidRule, r.HighestCPUUsage)
	}
	return nil
}

func (r SystemRule) String() string {
	return fmt.Sprintf("SystemRule{load=%v, cpu=%v, qps=%v, avgRt=%d, maxConcurrency=%d}",
		r.HighestSystemLoad, r.HighestCPUUsage, r.QPS, r.AvgRT, r.MaxConcurrency)
}
