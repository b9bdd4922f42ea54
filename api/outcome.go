package api

import (
	"io"
	"net/http"

	"userdata-gateway/middleware/ratelimit"
	"userdata-gateway/userdata/domain"

	"github.com/pkg/errors"
)

// Outcome é o resultado terminal de uma requisição de escrita.
type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeThrottled
	OutcomeUnauthenticated
	OutcomeInvalid
	OutcomeStorageFailed
)

type response struct {
	status int
	body   string
}

// responses é a tabela fechada outcome → resposta HTTP. Nenhum detalhe
// interno chega ao cliente.
var responses = map[Outcome]response{
	OutcomeStored:          {http.StatusOK, "OK"},
	OutcomeThrottled:       {http.StatusTooManyRequests, ratelimit.TooManyRequestsMessage},
	OutcomeUnauthenticated: {http.StatusUnauthorized, "authentication required"},
	OutcomeInvalid:         {http.StatusBadRequest, "invalid request body"},
	OutcomeStorageFailed:   {http.StatusInternalServerError, "internal server error"},
}

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeStorageFailed:
		return "storage_failed"
	default:
		return "unknown"
	}
}

// Status devolve o código HTTP do outcome.
func (o Outcome) Status() int {
	if r, ok := responses[o]; ok {
		return r.status
	}
	return http.StatusInternalServerError
}

// Classify mapeia o erro de qualquer estágio para um Outcome. Erros que não
// são de nenhuma categoria conhecida contam como falha de storage.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeStored
	case errors.Is(err, domain.ErrThrottled):
		return OutcomeThrottled
	case errors.Is(err, domain.ErrUnauthenticated):
		return OutcomeUnauthenticated
	case errors.Is(err, domain.ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeStorageFailed
	}
}

// Write escreve a resposta fixa do outcome.
func Write(w http.ResponseWriter, o Outcome) {
	r, ok := responses[o]
	if !ok {
		r = responses[OutcomeStorageFailed]
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(r.status)
	_, _ = io.WriteString(w, r.body)
}
