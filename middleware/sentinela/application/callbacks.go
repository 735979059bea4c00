package application

import (
	"sync"

	"fronteira/middleware/sentinela/domain"
)

// PassCallback roda quando uma entry é admitida.
type PassCallback func(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, args ...any)

// BlockedCallback roda quando uma entry é bloqueada.
type BlockedCallback func(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, be *domain.BlockError, args ...any)

// ExitCallback roda na saída de uma entry admitida (rt em ms).
type ExitCallback func(c *domain.Context, rw domain.ResourceWrapper, rt int64, count int, err error, args ...any)

// StatisticCallbacks é o registro de callbacks do slot de estatística.
// Registrar é raro; disparar é o caminho quente (lê sob RLock, sem cópia).
type StatisticCallbacks struct {
	mu      sync.RWMutex
	pass    map[string]PassCallback
	blocked map[string]BlockedCallback
	exit    map[string]ExitCallback
}

func NewStatisticCallbacks() *StatisticCallbacks {
	return &StatisticCallbacks{
		pass:    make(map[string]PassCallback),
		blocked: make(map[string]BlockedCallback),
		exit:    make(map[string]ExitCallback),
	}
}

func (s *StatisticCallbacks) AddPass(key string, f PassCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pass[key] = f
}

func (s *StatisticCallbacks) AddBlocked(key string, f BlockedCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[key] = f
}

func (s *StatisticCallbacks) AddExit(key string, f ExitCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exit[key] = f
}

// Remove tira os callbacks registrados com a chave (dos três tipos).
func (s *StatisticCallbacks) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pass, key)
	delete(s.blocked, key)
	delete(s.exit, key)
}

func (s *StatisticCallbacks) firePass(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, args ...any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.pass {
		f(c, rw, node, count, args...)
	}
}

func (s *StatisticCallbacks) fireBlocked(c *domain.Context, rw domain.ResourceWrapper, node domain.TreeNode, count int, be *domain.BlockError, args ...any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.blocked {
		f(c, rw, node, count, be, args...)
	}
}

func (s *StatisticCallbacks) fireExit(c *domain.Context, rw domain.ResourceWrapper, rt int64, count int, err error, args ...any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.exit {
		f(c, rw, rt, count, err, args...)
	}
}
