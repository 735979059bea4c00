package domain

// WaitPool limita quantos chamadores podem ficar esperando numa fila ao mesmo tempo.
//
// TryAcquire não bloqueia: devolve uma função de release que deve ser chamada
// exatamente uma vez, ou ok=false quando não há vaga.
type WaitPool interface {
	TryAcquire() (release func(), ok bool)
}
