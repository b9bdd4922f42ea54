package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"userdata-gateway/middleware/ratelimit/application"
	"userdata-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TooManyRequestsMessage é o corpo fixo da resposta 429.
const TooManyRequestsMessage = "Too many requests, please try again later."

type KeyFunc func(r *http.Request) string

// WaitFunc aplica o atraso do slow-down. Deve retornar erro se ctx encerrar antes.
type WaitFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	Store               domain.WindowStore
	Policy              domain.Policy
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
	Logger              *zap.Logger
	Wait                WaitFunc
	// OnReject, se definido, escreve a resposta de bloqueio no lugar do texto padrão.
	OnReject func(w http.ResponseWriter, r *http.Request, dec domain.Decision)
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip, _, _ := strings.Cut(xff, ",")
				if ip = strings.TrimSpace(ip); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// SleepContext é o WaitFunc padrão.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Middleware conta cada requisição na janela do cliente e, conforme a Policy,
// deixa passar, atrasa (slow-down) ou responde 429 sem chamar o próximo handler.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Wait == nil {
		opts.Wait = SleepContext
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.Service{
		Store:  opts.Store,
		Policy: opts.Policy,
		Logger: opts.Logger,
	}
	// um cliente martelando o teto não pode inundar o log
	denyLog := &rate.Sometimes{First: 5, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			dec := svc.Decide(r.Context(), domain.Key(key))
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Outcome: domain.OutcomeOf(dec),
					Delay:   dec.Delay,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w.Header(), opts.Policy, dec)
			}

			if !dec.Allowed {
				denyLog.Do(func() {
					opts.Logger.Warn("request throttled",
						zap.String("key", key),
						zap.Int64("count", dec.Count),
						zap.Duration("retry_after", dec.RetryAfter))
				})
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				if opts.OnReject != nil {
					opts.OnReject(w, r, dec)
					return
				}
				http.Error(w, TooManyRequestsMessage, opts.RejectStatus)
				return
			}

			if dec.Delay > 0 {
				if err := opts.Wait(r.Context(), dec.Delay); err != nil {
					// cliente desistiu durante o atraso; nada a responder
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, p domain.Policy, dec domain.Decision) {
	if p.HardCap > 0 {
		h.Set("X-RateLimit-Limit", formatInt64(p.HardCap))
		h.Set("X-RateLimit-Remaining", formatInt64(max(p.HardCap-dec.Count, 0)))
	}
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
	}
	if dec.Delay > 0 {
		h.Set("X-SlowDown-Delay", formatInt64(dec.Delay.Milliseconds()))
	}
}
