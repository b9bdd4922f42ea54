// Package domain define os tipos do registro do usuário, as mutações
// aceitas pela API e o contrato do storage.
//
// Não depende de net/http nem de um storage concreto.
package domain
