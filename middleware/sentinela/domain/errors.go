package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryFree indica exit fora de ordem (a entry não é a atual do Context)
	// ou exit repetido. É erro de uso do chamador, nunca condição de runtime.
	ErrEntryFree = errors.New("sentinela: entry exited out of order")

	ErrContextClosed = errors.New("sentinela: context already exited")
	ErrEmptyResource = errors.New("sentinela: resource name cannot be empty")
	ErrInvalidRule   = errors.New("sentinela: invalid rule")
	ErrInvalidCount  = errors.New("sentinela: entry count must be positive")
)

// BlockType identifica qual tipo de regra bloqueou a chamada.
type BlockType uint8

const (
	BlockTypeFlow BlockType = iota + 1
	BlockTypeDegrade
	BlockTypeSystem
	BlockTypeAuthority
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeFlow:
		return "flow"
	case BlockTypeDegrade:
		return "degrade"
	case BlockTypeSystem:
		return "system"
	case BlockTypeAuthority:
		return "authority"
	default:
		return fmt.Sprintf("BlockType(%d)", uint8(t))
	}
}

// BlockError é o sinal de bloqueio. É esperado e frequente, e precisa ser
// distinguível de uma falha de negócio do chamador (use errors.As).
type BlockError struct {
	blockType BlockType
	resource  string
	rule      Rule
	msg       string
	// snapshot guarda o valor observado no momento do bloqueio (ex.: QPS atual).
	snapshot any
}

func NewBlockError(t BlockType, resource string, rule Rule, msg string) *BlockError {
	return &BlockError{blockType: t, resource: resource, rule: rule, msg: msg}
}

func (e *BlockError) WithSnapshot(v any) *BlockError {
	e.snapshot = v
	return e
}

func (e *BlockError) BlockType() BlockType { return e.blockType }
func (e *BlockError) Resource() string { return e.resource }
func (e *BlockError) Rule() Rule { return e.rule }
func (e *BlockError) Snapshot() any { return e.snapshot }

func (e *BlockError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("sentinela: %s blocked by %s rule", e.resource, e.blockType)
	}
	return fmt.Sprintf("sentinela: %s blocked by %s rule: %s", e.resource, e.blockType, e.msg)
}

// AsBlockError extrai o BlockError de uma cadeia de erros.
func AsBlockError(err error) (*BlockError, bool) {
	var be *BlockError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func IsBlocked(err error) bool {
	_, ok := AsBlockError(err)
	return ok
}

func entryFreeError(cur, exiting *Entry) error {
	curName := "<none>"
	if cur != nil {
		curName = cur.resource.Name()
	}
	return fmt.Errorf("%w: current entry in context is %q, but exiting %q", ErrEntryFree, curName, exiting.resource.Name())
}
