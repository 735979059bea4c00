package domain

import "context"

// Context é o cursor da árvore de chamadas de uma unidade de execução.
//
// Não é seguro para uso concorrente: pertence a uma goroutine por vez.
// Para levar a árvore para um worker use Entry.AsyncContext (captura explícita).
type Context struct {
	name         string
	origin       string
	entranceNode TreeNode
	curEntry     *Entry

	// auto: criado implicitamente, fecha quando a entry raiz sai.
	auto   bool
	async  bool
	null   bool
	closed bool
}

func NewContext(name, origin string, entranceNode TreeNode) *Context {
	return &Context{name: name, origin: origin, entranceNode: entranceNode}
}

// NewAutoContext cria um contexto implícito, fechado quando sua entry raiz sai.
func NewAutoContext(name, origin string, entranceNode TreeNode) *Context {
	c := NewContext(name, origin, entranceNode)
	c.auto = true
	return c
}

// NewNullContext cria um contexto que não coleta estatística nem checa regras.
// Usado quando o limite de contextos foi atingido.
func NewNullContext() *Context {
	return &Context{name: "sentinela_null_context", null: true}
}

func (c *Context) Name() string { return c.name }
func (c *Context) Origin() string { return c.origin }
func (c *Context) EntranceNode() TreeNode { return c.entranceNode }
func (c *Context) CurEntry() *Entry { return c.curEntry }
func (c *Context) IsAsync() bool { return c.async }
func (c *Context) IsAuto() bool { return c.auto }
func (c *Context) IsNull() bool { return c.null }
func (c *Context) IsClosed() bool { return c.closed }

// CurNode é o nó da entry atual (nil se não houver entry ativa).
func (c *Context) CurNode() TreeNode {
	if c.curEntry == nil {
		return nil
	}
	return c.curEntry.curNode
}

// LastNode é o nó pai para a próxima entry: o nó do pai da entry atual,
// ou o nó de entrada do contexto.
func (c *Context) LastNode() TreeNode {
	if c.curEntry != nil {
		if n := c.curEntry.LastNode(); n != nil {
			return n
		}
	}
	return c.entranceNode
}

func (c *Context) OriginNode() StatNode {
	if c.curEntry == nil {
		return nil
	}
	return c.curEntry.originNode
}

// Depth é a profundidade da árvore ativa (0 quando nenhuma entry está aberta).
func (c *Context) Depth() int {
	d := 0
	for e := c.curEntry; e != nil && e.ctx == c; e = e.parent {
		d++
	}
	return d
}

// Exit libera o contexto quando a árvore está vazia. Retorna false se ainda
// houver entry ativa (o contexto continua aberto).
func (c *Context) Exit() bool {
	if c.curEntry != nil {
		return false
	}
	c.closed = true
	return true
}

type contextKey struct{}

// IntoContext amarra o Context do sentinela a um context.Context.
func IntoContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext devolve o Context amarrado, se houver um ainda aberto.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || c == nil || c.closed {
		return nil, false
	}
	return c, true
}
