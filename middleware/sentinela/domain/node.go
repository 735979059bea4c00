package domain

// StatNode é o contrato de leitura/escrita de um acumulador estatístico
// (recurso, origem ou total do processo).
//
// Leituras "QPS" usam a janela de segundo; leituras "Total" usam a janela de minuto.
// Escritas são atômicas e podem ser feitas por muitas goroutines ao mesmo tempo.
type StatNode interface {
	TotalRequest() int64
	TotalPass() int64
	TotalSuccess() int64
	BlockRequest() int64
	TotalException() int64

	PassQPS() float64
	BlockQPS() float64
	TotalQPS() float64
	SuccessQPS() float64
	MaxSuccessQPS() float64
	ExceptionQPS() float64
	OccupiedPassQPS() float64
	AvgRT() float64
	MinRT() float64
	CurConcurrency() int64

	PreviousPassQPS() float64
	PreviousBlockQPS() float64

	AddPassRequest(count int)
	AddRTAndSuccess(rt int64, success int)
	IncreaseBlockQPS(count int)
	IncreaseExceptionQPS(count int)
	IncreaseConcurrency()
	DecreaseConcurrency()

	// TryOccupyNext retorna quantos ms o chamador precisa esperar para caber
	// numa janela futura, ou o timeout de ocupação se não couber.
	TryOccupyNext(nowMs int64, acquireCount int, threshold float64) int64
	AddWaitingRequest(futureMs int64, acquireCount int)
	AddOccupiedPass(acquireCount int)
	Waiting() int64

	Reset()
}

// TreeNode é um StatNode que participa da árvore de chamadas
// (nó por recurso dentro de um contexto, ou nó de entrada do contexto).
type TreeNode interface {
	StatNode
	Resource() ResourceWrapper
	AddChild(child TreeNode)
	Children() []TreeNode
}
