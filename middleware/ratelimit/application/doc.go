// Package application contém os casos de uso do throttle e do limite de
// concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, key) retorna uma Decision (passa/atrasa/bloqueia).
package application
