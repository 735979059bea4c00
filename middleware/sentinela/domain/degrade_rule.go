package domain

import "fmt"

// DegradeGrade é a estratégia do circuit breaker.
type DegradeGrade int

const (
	// DegradeSlowRequestRatio: Count é o RT máximo (ms); abre quando a razão de lentas passa SlowRatioThreshold.
	DegradeSlowRequestRatio DegradeGrade = iota
	// DegradeErrorRatio: Count é a razão de erro [0,1].
	DegradeErrorRatio
	// DegradeErrorCount: Count é o número de erros na janela.
	DegradeErrorCount
)

var degradeGradeNames = []string{"slow_request_ratio", "error_ratio", "error_count"}

func (g DegradeGrade) String() string { return enumName(int(g), degradeGradeNames) }
func (g DegradeGrade) MarshalText() ([]byte, error) { return []byte(g.String()), nil }
func (g *DegradeGrade) UnmarshalText(b []byte) error {
	i, err := enumText(b, degradeGradeNames)
	*g = DegradeGrade(i)
	return err
}

const (
	DefaultMinRequestAmount   = 5
	DefaultStatIntervalMs     = 1000
	DefaultSlowRatioThreshold = 1.0
	// SlowRatioAnySlow abre o breaker com uma única chamada lenta no intervalo
	// (zero não serve: vira DefaultSlowRatioThreshold).
	SlowRatioAnySlow = 1e-9
)

// DegradeRule configura um circuit breaker por recurso.
type DegradeRule struct {
	Resource string       `json:"resource" yaml:"resource"`
	LimitApp string       `json:"limitApp,omitempty" yaml:"limitApp,omitempty"`
	Grade    DegradeGrade `json:"grade" yaml:"grade"`
	Count    float64      `json:"count" yaml:"count"`
	// TimeWindow é o tempo de recuperação em segundos (Open -> HalfOpen).
	TimeWindow       int `json:"timeWindow" yaml:"timeWindow"`
	MinRequestAmount int `json:"minRequestAmount,omitempty" yaml:"minRequestAmount,omitempty"`
	// SlowRatioThreshold zerado significa "não definido" (1.0). Para abrir com
	// qualquer chamada lenta use SlowRatioAnySlow.
	SlowRatioThreshold float64 `json:"slowRatioThreshold,omitempty" yaml:"slowRatioThreshold,omitempty"`
	StatIntervalMs     int     `json:"statIntervalMs,omitempty" yaml:"statIntervalMs,omitempty"`
}

// WithDefaults preenche os campos opcionais zerados.
// Observação: SlowRatioThreshold zerado vira 1.0.
func (r DegradeRule) WithDefaults() DegradeRule {
	if r.LimitApp == "" {
		r.LimitApp = LimitAppDefault
	}
	if r.MinRequestAmount == 0 {
		r.MinRequestAmount = DefaultMinRequestAmount
	}
	if r.StatIntervalMs == 0 {
		r.StatIntervalMs = DefaultStatIntervalMs
	}
	if r.SlowRatioThreshold == 0 {
		r.SlowRatioThreshold = DefaultSlowRatioThreshold
	}
	return r
}

func (r DegradeRule) ResourceName() string { return r.Resource }

func (r DegradeRule) Validate() error {
	switch {
	case r.Resource == "":
		return fmt.Errorf("%w: empty resource", ErrInvalidRule)
	case r.Count < 0:
		return invalidRule(r, "count must be >= 0, got %v", r.Count)
	case r.TimeWindow <= 0:
		return invalidRule(r, "timeWindow must be > 0")
	case r.MinRequestAmount <= 0:
		return invalidRule(r, "minRequestAmount must be > 0")
	case r.StatIntervalMs <= 0:
		return invalidRule(r, "statIntervalMs must be > 0")
	}
	switch r.Grade {
	case DegradeSlowRequestRatio:
		if r.SlowRatioThreshold < 0 || r.SlowRatioThreshold > 1 {
			return invalidRule(r, "slowRatioThreshold must be in [0,1]")
		}
	case DegradeErrorRatio:
		if r.Count > 1 {
			return invalidRule(r, "error ratio must be in [0,1], got %v", r.Count)
		}
	case DegradeErrorCount:
	default:
		return invalidRule(r, "unknown grade %d", int(r.Grade))
	}
	return nil
}

func (r DegradeRule) String() string {
	return fmt.Sprintf("DegradeRule{resource=%s, grade=%s, count=%v, timeWindow=%ds, minRequestAmount=%d, slowRatioThreshold=%v, statIntervalMs=%d}",
		r.Resource, r.Grade, r.Count, r.TimeWindow, r.MinRequestAmount, r.SlowRatioThreshold, r.StatIntervalMs)
}
