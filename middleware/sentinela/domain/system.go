package domain

// SystemStatus expõe a carga da máquina para a regra de sistema.
//
// Load é o load average de 1 minuto (<0 quando indisponível) e CPUUsage é a
// fração [0,1] de CPU usada no último intervalo amostrado (<0 quando indisponível).
type SystemStatus interface {
	Load() float64
	CPUUsage() float64
}
