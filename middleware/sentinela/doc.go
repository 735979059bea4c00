// Package sentinela fornece o adapter HTTP (net/http) do controle de tráfego.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (recurso, Context/Entry, regras, erros de bloqueio)
//   - infra: janelas deslizantes, nós de estatística, sinks de métricas, status do sistema
//   - application: Guard, slot chain e managers de regra (fluxo, degrade, sistema, autoridade)
//   - datasource: carga e recarga de regras a partir de arquivo YAML
//   - sentinela (este pacote): middleware HTTP + extração de recurso/origem + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai o recurso ("METHOD /path") e a origem do cliente (header/XFF/IP)
//  2. Abre um Context de entrada e pede uma Entry Inbound à Guard
//  3. Se bloqueado, responde 429 (fluxo), 503 (degrade/sistema) ou 403 (autoridade)
//  4. Se permitido, chama o próximo handler; status >= 500 conta como erro para o degrade
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como SENTINELA_RULES_FILE, ORIGIN_HEADER e TRUST_XFF.
package sentinela
