// Package application contém os casos de uso do sentinela: a Guard (ponto de
// entrada), a chain de slots, os slots de decisão, os managers de regra, os
// controladores de fluxo e os circuit breakers.
//
// Ele depende apenas de domain e infra e não conhece net/http.
// Ex.: guard.Entry(c, "GET:/users") devolve uma *domain.Entry ou um *domain.BlockError.
package application
