package domain

// TerminateHandler roda exatamente uma vez quando a entry sai,
// tenha ela passado ou sido bloqueada.
type TerminateHandler func(c *Context, e *Entry)

// Entry representa uma tentativa de uso de um recurso. Deve sair (Exit)
// exatamente uma vez, em ordem LIFO em relação às outras entries do Context.
type Entry struct {
	resource     ResourceWrapper
	createTime   int64
	completeTime int64
	count        int
	args         []any

	curNode    TreeNode
	originNode StatNode

	parent *Entry
	child  *Entry
	ctx    *Context
	// chain nil => entry "pass-through" (sem regras e sem estatística).
	chain ProcessorSlot

	blockErr *BlockError
	err      error

	handlers []TerminateHandler
	exited   bool
}

// NewEntry cria a entry e a empilha como filha do cursor do Context.
func NewEntry(rw ResourceWrapper, chain ProcessorSlot, c *Context, createMs int64, count int, args []any) *Entry {
	e := &Entry{
		resource:   rw,
		chain:      chain,
		ctx:        c,
		createTime: createMs,
		count:      count,
		args:       args,
	}
	if c == nil || c.null {
		return e
	}
	e.parent = c.curEntry
	if e.parent != nil {
		e.parent.child = e
	}
	c.curEntry = e
	return e
}

func (e *Entry) Resource() ResourceWrapper { return e.resource }
func (e *Entry) CreateTime() int64 { return e.createTime }
func (e *Entry) CompleteTime() int64 { return e.completeTime }
func (e *Entry) SetCompleteTime(ms int64) { e.completeTime = ms }
func (e *Entry) Count() int { return e.count }
func (e *Entry) Args() []any { return e.args }
func (e *Entry) CurNode() TreeNode { return e.curNode }
func (e *Entry) SetCurNode(n TreeNode) { e.curNode = n }
func (e *Entry) OriginNode() StatNode { return e.originNode }
func (e *Entry) SetOriginNode(n StatNode) { e.originNode = n }
func (e *Entry) Parent() *Entry { return e.parent }
func (e *Entry) Child() *Entry { return e.child }
func (e *Entry) Context() *Context { return e.ctx }
func (e *Entry) BlockError() *BlockError { return e.blockErr }
func (e *Entry) SetBlockError(be *BlockError) { e.blockErr = be }
func (e *Entry) Exited() bool { return e.exited }

// Err é o erro de negócio marcado pelo chamador (conta como exceção no exit).
func (e *Entry) Err() error { return e.err }

// SetError marca um erro de negócio. Erros de bloqueio são ignorados.
func (e *Entry) SetError(err error) {
	if err == nil || IsBlocked(err) {
		return
	}
	e.err = err
}

// LastNode é o nó da entry pai (nil para a raiz).
func (e *Entry) LastNode() TreeNode {
	if e.parent == nil {
		return nil
	}
	return e.parent.curNode
}

// PassThrough desliga a chain da entry: o exit não passa pelos slots.
func (e *Entry) PassThrough() { e.chain = nil }

// WhenTerminate registra um handler chamado no exit, passando ou bloqueando.
func (e *Entry) WhenTerminate(h TerminateHandler) {
	if h == nil {
		return
	}
	e.handlers = append(e.handlers, h)
}

// AsyncContext devolve o contexto capturado de uma entry assíncrona
// (nil para entries comuns).
func (e *Entry) AsyncContext() *Context {
	if e.ctx != nil && e.ctx.async {
		return e.ctx
	}
	return nil
}

// DetachAsync move a entry (que precisa ser a atual) para uma cópia assíncrona
// do contexto, e restaura o cursor do chamador para o pai.
func (e *Entry) DetachAsync() *Context {
	c := e.ctx
	if c == nil || c.null || c.curEntry != e {
		return nil
	}
	async := &Context{
		name:         c.name,
		origin:       c.origin,
		entranceNode: c.entranceNode,
		curEntry:     e,
		async:        true,
	}
	c.curEntry = e.parent
	if e.parent != nil {
		e.parent.child = nil
	}
	e.ctx = async
	return async
}

type exitOptions struct {
	count int
	args  []any
}

type ExitOption func(*exitOptions)

// WithExitCount sobrescreve o número de tokens liberados (padrão: o count da entry).
func WithExitCount(n int) ExitOption {
	return func(o *exitOptions) { o.count = n }
}

func WithExitArgs(args ...any) ExitOption {
	return func(o *exitOptions) { o.args = args }
}

// Exit completa a entry e devolve o cursor do Context para o pai.
//
// Se a entry não for a atual do Context, as descendentes ainda abertas saem
// (cada uma contabilizada no próprio recurso), a entry sai, e o erro
// ErrEntryFree é devolvido: o pareamento do chamador está errado.
func (e *Entry) Exit(opts ...ExitOption) error {
	o := exitOptions{count: e.count, args: e.args}
	for _, opt := range opts {
		opt(&o)
	}

	if e.exited {
		return entryFreeError(nil, e)
	}

	c := e.ctx
	if c == nil || c.null {
		e.exited = true
		e.runHandlers(c)
		return nil
	}

	if c.curEntry == e {
		e.exitForContext(c, o.count, o.args)
		return nil
	}

	cur := c.curEntry
	if !e.isAncestorOf(cur) {
		return entryFreeError(cur, e)
	}
	for n := cur; n != nil && n != e; {
		parent := n.parent
		n.exitForContext(c, n.count, n.args)
		n = parent
	}
	e.exitForContext(c, o.count, o.args)
	return entryFreeError(cur, e)
}

func (e *Entry) isAncestorOf(n *Entry) bool {
	for ; n != nil; n = n.parent {
		if n == e {
			return true
		}
	}
	return false
}

func (e *Entry) exitForContext(c *Context, count int, args []any) {
	if e.chain != nil {
		e.chain.Exit(c, e.resource, count, args...)
	}
	e.exited = true
	e.runHandlers(c)

	if p := e.parent; p != nil && p.ctx == c {
		c.curEntry = p
		p.child = nil
		return
	}
	c.curEntry = nil
	if c.auto || c.async {
		c.closed = true
	}
}

func (e *Entry) runHandlers(c *Context) {
	hs := e.handlers
	e.handlers = nil
	for _, h := range hs {
		h(c, e)
	}
}
