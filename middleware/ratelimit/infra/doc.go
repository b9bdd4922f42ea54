// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - WindowStore: janelas fixas em memória, com varredura de janelas vencidas
//   - RedisWindowStore: janelas fixas compartilhadas entre réplicas (go-redis)
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões do throttle
//   - ChanPool: semáforo simples para limite de concorrência
package infra
