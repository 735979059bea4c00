package domain

import "fmt"

// EntryType indica a direção do tráfego de um recurso.
type EntryType int8

const (
	Inbound EntryType = iota
	Outbound
)

func (t EntryType) String() string {
	switch t {
	case Inbound:
		return "IN"
	case Outbound:
		return "OUT"
	default:
		return fmt.Sprintf("EntryType(%d)", int8(t))
	}
}

// ResourceKind classifica o recurso (web, rpc, gateway...). É apenas informativo.
type ResourceKind int32

const (
	KindCommon ResourceKind = iota
	KindWeb
	KindRPC
	KindAPIGateway
	KindDBSQL
)

// ResourceWrapper é a identidade imutável de um recurso protegido.
//
// Igualdade e chave de mapa dependem só do nome: dois wrappers com o mesmo nome
// e direções diferentes compartilham chain e nós estatísticos.
type ResourceWrapper struct {
	name      string
	entryType EntryType
	kind      ResourceKind
}

func NewResourceWrapper(name string, entryType EntryType, kind ResourceKind) (ResourceWrapper, error) {
	if name == "" {
		return ResourceWrapper{}, ErrEmptyResource
	}
	return ResourceWrapper{name: name, entryType: entryType, kind: kind}, nil
}

func (r ResourceWrapper) Name() string { return r.name }
func (r ResourceWrapper) EntryType() EntryType { return r.entryType }
func (r ResourceWrapper) Kind() ResourceKind { return r.kind }
func (r ResourceWrapper) Equal(o ResourceWrapper) bool { return r.name == o.name }

func (r ResourceWrapper) String() string {
	return fmt.Sprintf("%s(%s)", r.name, r.entryType)
}
