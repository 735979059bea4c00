// Package datasource carrega regras de um arquivo YAML e recarrega quando ele muda.
package datasource
