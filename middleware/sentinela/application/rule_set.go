package application

import (
	"go.uber.org/multierr"

	"fronteira/middleware/sentinela/domain"
)

// validateAll valida todas as regras e agrega os erros.
func validateAll[R domain.Rule](rules []R) error {
	var errs error
	for _, r := range rules {
		errs = multierr.Append(errs, r.Validate())
	}
	return errs
}

// byResource agrupa preservando a ordem de carga dentro de cada recurso.
func byResource[T any](items []T, name func(T) string) map[string][]T {
	out := make(map[string][]T)
	for _, it := range items {
		n := name(it)
		out[n] = append(out[n], it)
	}
	return out
}
