// Package domain define contratos e tipos de domínio para o throttle
// (contagem por janela, política de atraso/bloqueio) e limite de concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
