// Package application contém o Router de mutações: cada tipo de
// domain.Mutation vira exatamente uma operação do storage, sempre no registro
// da identidade resolvida.
//
// Não conhece net/http. Não faz retry: retry é assunto do storage.
package application
