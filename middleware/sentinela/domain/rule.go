package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Rule é o contrato comum das variantes de regra (flow, degrade, system, authority).
// Conjuntos de regras são snapshots imutáveis: os managers trocam o conjunto inteiro.
type Rule interface {
	ResourceName() string
	Validate() error
	String() string
}

const (
	// LimitAppDefault aplica a regra a qualquer origem.
	LimitAppDefault = "default"
	// LimitAppOther aplica a regra às origens não citadas em outras regras do recurso.
	LimitAppOther = "other"
)

func invalidRule(r Rule, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRule, r.ResourceName(), fmt.Sprintf(format, args...))
}

// enumText faz o parse de um enum aceitando o nome (case-insensitive) ou o número.
func enumText(text []byte, names []string) (int, error) {
	v := strings.TrimSpace(string(text))
	for i, n := range names {
		if n != "" && strings.EqualFold(n, v) {
			return i, nil
		}
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 || i >= len(names) || names[i] == "" {
		return 0, fmt.Errorf("unknown value %q", v)
	}
	return i, nil
}

func enumName(i int, names []string) string {
	if i >= 0 && i < len(names) && names[i] != "" {
		return names[i]
	}
	return strconv.Itoa(i)
}
