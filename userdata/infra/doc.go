// Package infra contém as implementações de domain.Store.
//
//   - MemoryStore: mapa protegido por mutex (padrão, e usado nos testes)
//   - RedisStore: um hash por grupo e uma lista para o histórico (go-redis)
//   - SQLStore: tabelas libsql/SQLite via database/sql
//
// Open escolhe a implementação a partir da configuração.
package infra
