package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"userdata-gateway/middleware/identity"
	"userdata-gateway/middleware/ratelimit"
	ratelimitdomain "userdata-gateway/middleware/ratelimit/domain"
	ratelimitinfra "userdata-gateway/middleware/ratelimit/infra"
	"userdata-gateway/userdata/application"
	"userdata-gateway/userdata/domain"
	"userdata-gateway/userdata/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alice = "alice@example.com"

// countingStore conta quantas chamadas chegam ao storage.
type countingStore struct {
	domain.Store
	calls atomic.Int64
}

func (s *countingStore) FindUser(ctx context.Context, email string) (domain.UserRecord, error) {
	s.calls.Add(1)
	return s.Store.FindUser(ctx, email)
}

func (s *countingStore) UpdateSettings(ctx context.Context, email, key string, value any) error {
	s.calls.Add(1)
	return s.Store.UpdateSettings(ctx, email, key, value)
}

func (s *countingStore) UpdateStatistics(ctx context.Context, email string, st domain.Statistics) error {
	s.calls.Add(1)
	return s.Store.UpdateStatistics(ctx, email, st)
}

func (s *countingStore) AddTime(ctx context.Context, email string, t int64) error {
	s.calls.Add(1)
	return s.Store.AddTime(ctx, email, t)
}

// failingStore falha toda escrita.
type failingStore struct{ domain.Store }

func (failingStore) AddTime(context.Context, string, int64) error {
	return context.DeadlineExceeded
}

type fixture struct {
	handler http.Handler
	store   *countingStore
	waits   []time.Duration
}

func newFixture(t *testing.T, policy *ratelimitdomain.Policy) *fixture {
	t.Helper()

	mem := infra.NewMemoryStore()
	require.NoError(t, mem.CreateUser(context.Background(), alice))
	f := &fixture{store: &countingStore{Store: mem}}

	deps := Deps{
		Handlers: Handlers{
			Users:        application.Router{Store: f.store, AutoProvision: true},
			MaxBodyBytes: 256,
		},
		Identity: identity.HeaderResolver{},
	}
	if policy != nil {
		deps.Throttle = &ratelimit.Options{
			Store:  ratelimitinfra.NewWindowStore(policy.Window),
			Policy: *policy,
			Wait: func(_ context.Context, d time.Duration) error {
				f.waits = append(f.waits, d)
				return nil
			},
		}
	}
	f.handler = NewRouter(deps)
	return f
}

func (f *fixture) do(method, path, email, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://gateway"+path, strings.NewReader(body))
	r.RemoteAddr = "10.0.0.1:5555"
	if email != "" {
		r.Header.Set(identity.DefaultHeader, email)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func (f *fixture) user(t *testing.T, email string) domain.UserInfo {
	t.Helper()
	w := f.do(http.MethodGet, "/api/user", email, "")
	require.Equal(t, http.StatusOK, w.Code)
	var info domain.UserInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info
}

func TestUpdate_Settings(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/update/settings", alice, `{"backgroundColor":"#1a2B3c"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = f.do(http.MethodPost, "/api/update/settings", alice, `{"counter":4}`)
	assert.Equal(t, http.StatusOK, w.Code)

	info := f.user(t, alice)
	assert.Equal(t, "#1a2B3c", info.Settings["backgroundColor"])
	assert.EqualValues(t, 4, info.Settings["counter"])
}

func TestUpdate_SettingsRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{
		`{"backgroundColor":"red"}`,
		`{"counter":-1}`,
		`{"backgroundColor":"#fff","counter":1}`,
		`{"theme":"dark"}`,
		`{}`,
		`not json`,
	} {
		w := f.do(http.MethodPost, "/api/update/settings", alice, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid request body", w.Body.String())
	}
	assert.Empty(t, f.user(t, alice).Settings)
}

func TestUpdate_StatisticsReplacesGroup(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/update/statistics", alice, `{"average":12,"averageOf5":10}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/api/update/statistics", alice, `{"average":"12","averageOf5":10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPost, "/api/update/statistics", alice, `{"average":12}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, domain.Statistics{Average: 12, AverageOf5: 10}, f.user(t, alice).Statistics)
}

func TestUpdate_TimesAppendsDuplicates(t *testing.T) {
	f := newFixture(t, nil)

	for range 2 {
		w := f.do(http.MethodPost, "/api/update/times", alice, `{"time":15320}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, []int64{15320, 15320}, f.user(t, alice).Times)
}

func TestUpdate_UnauthenticatedRegardlessOfBody(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{`{"time":1}`, `garbage`, ``} {
		w := f.do(http.MethodPost, "/api/update/times", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "authentication required", w.Body.String())
	}
	w := f.do(http.MethodGet, "/api/user", "not-an-email", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.store.calls.Load())
}

func TestUpdate_BodyLimit(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"time":1` + strings.Repeat(" ", 300) + `}`
	w := f.do(http.MethodPost, "/api/update/times", alice, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.user(t, alice).Times)
}

func TestUpdate_StorageFailureIsOpaque(t *testing.T) {
	mem := infra.NewMemoryStore()
	require.NoError(t, mem.CreateUser(context.Background(), alice))
	h := NewRouter(Deps{
		Handlers: Handlers{Users: application.Router{Store: failingStore{Store: mem}}},
		Identity: identity.HeaderResolver{},
	})

	r := httptest.NewRequest(http.MethodPost, "/api/update/times", strings.NewReader(`{"time":1}`))
	r.Header.Set(identity.DefaultHeader, alice)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", w.Body.String())
}

func TestUpdate_MissingUserIsStorageFailure(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/update/times", "bob@example.com", `{"time":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetUser_AutoProvisionsAndIsolates(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/update/times", alice, `{"time":7}`).Code)

	bob := f.user(t, "Bob@Example.com ")
	assert.Equal(t, "bob@example.com", bob.Email)
	assert.Empty(t, bob.Times)
	assert.NotNil(t, bob.Settings)

	assert.Equal(t, []int64{7}, f.user(t, alice).Times)
}

func TestThrottle_SlowsDownThenRejectsBeforeAnyStage(t *testing.T) {
	policy := ratelimitdomain.Policy{
		Window:    time.Minute,
		Threshold: 2,
		DelayStep: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		HardCap:   4,
	}
	f := newFixture(t, &policy)

	for i := range 3 {
		w := f.do(http.MethodPost, "/api/update/times", alice, `{"time":1}`)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, f.waits)
	before := f.store.calls.Load()

	// 4ª requisição atinge o teto: nem identidade nem corpo importam
	w := f.do(http.MethodPost, "/api/update/times", "", `garbage`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ratelimit.TooManyRequestsMessage, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, before, f.store.calls.Load())
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/update/profile", alice, `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(http.MethodGet, "/api/update/times", alice, "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeStored},
		{domain.ErrThrottled, OutcomeThrottled},
		{domain.ErrUnauthenticated, OutcomeUnauthenticated},
		{&domain.ValidationError{Kind: domain.KindTimes, Field: "time", Reason: "required"}, OutcomeInvalid},
		{&domain.StorageError{Op: "add time", Err: domain.ErrUserNotFound}, OutcomeStorageFailed},
		{context.DeadlineExceeded, OutcomeStorageFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		o      Outcome
		status int
		body   string
	}{
		{OutcomeStored, 200, "OK"},
		{OutcomeThrottled, 429, "Too many requests, please try again later."},
		{OutcomeUnauthenticated, 401, "authentication required"},
		{OutcomeInvalid, 400, "invalid request body"},
		{OutcomeStorageFailed, 500, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.o.String(), func(t *testing.T) {
			w := httptest.NewRecorder()
			Write(w, tt.o)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
			assert.Equal(t, tt.status, tt.o.Status())
		})
	}
}

func TestRequestID_PropagatesIncomingHeader(t *testing.T) {
	f := newFixture(t, nil)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestUpdate_OverwritesAreIdempotent(t *testing.T) {
	once := newFixture(t, nil)
	twice := newFixture(t, nil)

	for _, call := range []struct{ path, body string }{
		{"/api/update/settings", `{"counter":5}`},
		{"/api/update/statistics", `{"average":10,"averageOf5":12}`},
	} {
		require.Equal(t, http.StatusOK, once.do(http.MethodPost, call.path, alice, call.body).Code)
		for range 2 {
			require.Equal(t, http.StatusOK, twice.do(http.MethodPost, call.path, alice, call.body).Code)
		}
	}

	assert.Equal(t, once.user(t, alice), twice.user(t, alice))
	assert.Equal(t, domain.Statistics{Average: 10, AverageOf5: 12}, once.user(t, alice).Statistics)
}

func TestThrottle_HardCapRejectedWhileSlotIsBusy(t *testing.T) {
	mem := infra.NewMemoryStore()
	require.NoError(t, mem.CreateUser(context.Background(), alice))

	var block atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	wait := func(ctx context.Context, _ time.Duration) error {
		if !block.CompareAndSwap(true, false) {
			return nil
		}
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h := NewRouter(Deps{
		Handlers: Handlers{Users: application.Router{Store: mem}},
		Throttle: &ratelimit.Options{
			Store: ratelimitinfra.NewWindowStore(time.Minute),
			Policy: ratelimitdomain.Policy{
				Window:    time.Minute,
				Threshold: 1,
				DelayStep: 100 * time.Millisecond,
				MaxDelay:  time.Second,
				HardCap:   3,
			},
			Wait: wait,
		},
		Concurrency: ratelimit.ConcurrencyOptions{Max: 1},
		Identity:    identity.HeaderResolver{},
	})

	send := func(ctx context.Context, remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/update/times", strings.NewReader(`{"time":1}`)).WithContext(ctx)
		r.RemoteAddr = remote
		r.Header.Set(identity.DefaultHeader, alice)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}
	const slow, capped = "10.0.0.1:1000", "10.0.0.2:2000"
	ctx := context.Background()

	// capped chega a 2 requisições, uma abaixo do teto
	for range 2 {
		require.Equal(t, http.StatusOK, send(ctx, capped).Code)
	}

	// slow entra em atraso e fica parado no wait
	require.Equal(t, http.StatusOK, send(ctx, slow).Code)
	block.Store(true)
	done := make(chan int, 1)
	go func() { done <- send(ctx, slow).Code }()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed request never reached the wait")
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	w := send(reqCtx, capped)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ratelimit.TooManyRequestsMessage, w.Body.String())
	assert.NoError(t, reqCtx.Err(), "429 must not wait for a concurrency slot")

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}
