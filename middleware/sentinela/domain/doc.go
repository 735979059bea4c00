// Package domain define o modelo central do sentinela: identidade de recurso,
// Context/Entry (árvore de chamadas), contrato dos slots, regras e erros.
//
// Este pacote não depende de net/http nem das implementações concretas de
// estatística (infra). A intenção é que slots, managers de regra e adapters
// conversem apenas por estes contratos.
package domain
