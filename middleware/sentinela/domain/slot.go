package domain

// ProcessorSlot é um estágio da chain.
//
// Entry faz sua contabilidade/decisão e precisa repassar explicitamente ao
// próximo estágio (ver application.LinkedSlot). Para bloquear, retorna um
// *BlockError em vez de repassar. Exit roda na mesma ordem de encadeamento,
// e também precisa repassar.
type ProcessorSlot interface {
	Entry(c *Context, rw ResourceWrapper, node TreeNode, count int, prioritized bool, args ...any) error
	Exit(c *Context, rw ResourceWrapper, count int, args ...any)
}
