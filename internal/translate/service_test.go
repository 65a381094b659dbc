package translate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ferro-labs/afd-translator/internal/cache"
	"github.com/ferro-labs/afd-translator/internal/circuitbreaker"
	"github.com/ferro-labs/afd-translator/providers"
)

const sampleAFD = "LOW PRESSURE DEEPENS OFFSHORE TONIGHT WITH GUSTY SW WINDS 25-35 KT AFTER 06Z."

type fakeReply struct {
	resp *providers.Response
	err  error
}

// fakeProvider answers with replies in order, repeating the last one.
type fakeProvider struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   []providers.Request
	ctxErrs []error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req providers.Request) (*providers.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if len(f.replies) == 0 {
		return &providers.Response{Text: "translated: " + req.Prompt, Model: req.Model}, nil
	}
	i := len(f.calls) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i].resp, f.replies[i].err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	provider *fakeProvider
	store    *cache.Memory
	clock    *fakeClock
	connects int
	sleeps   []time.Duration
}

func newFixture(t *testing.T, keys KeySource, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{provider: &fakeProvider{}, clock: newFakeClock()}
	f.store = cache.NewMemory(time.Hour, cache.DefaultSweepThreshold, cache.WithClock(f.clock.Now))
	connect := func(string) (providers.Provider, error) {
		f.connects++
		return f.provider, nil
	}
	opts = append([]Option{WithSleep(func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	})}, opts...)
	f.svc = New(f.store, keys, connect, cfg, opts...)
	return f
}

func requireError(t *testing.T, err error, kind Kind, status int, msg string) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if te.Kind != kind || te.Status != status || te.Message != msg {
		t.Fatalf("got kind=%s status=%d msg=%q, want kind=%s status=%d msg=%q",
			te.Kind, te.Status, te.Message, kind, status, msg)
	}
	return te
}

func TestTranslate_MissThenHit(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	ctx := context.Background()

	res, err := f.svc.Translate(ctx, Request{Text: sampleAFD, Section: "SHORT TERM", Office: "SEW"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cached {
		t.Error("first call should not be cached")
	}
	if res.Translation != "translated: "+sampleAFD {
		t.Errorf("translation = %q", res.Translation)
	}
	if res.Key != Key(sampleAFD) {
		t.Errorf("key = %q, want %q", res.Key, Key(sampleAFD))
	}

	call := f.provider.calls[0]
	if call.Model != DefaultModel || call.MaxTokens != DefaultMaxTokens {
		t.Errorf("model=%q max_tokens=%d", call.Model, call.MaxTokens)
	}
	if call.Prompt != sampleAFD {
		t.Errorf("prompt = %q", call.Prompt)
	}
	if !strings.Contains(call.System, "Section: SHORT TERM") || !strings.Contains(call.System, "NWS office: SEW") {
		t.Errorf("system prompt missing labels: %s", call.System)
	}

	res, err = f.svc.Translate(ctx, Request{Text: sampleAFD, Section: "LONG TERM"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || res.Translation != "translated: "+sampleAFD {
		t.Errorf("second call = %+v, want cached translation", res)
	}
	if got := f.provider.callCount(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestTranslate_LengthBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{"empty", "", MsgTooShort},
		{"19 units", strings.Repeat("a", 19), MsgTooShort},
		{"20 units", strings.Repeat("a", 20), ""},
		{"10 astral runes", strings.Repeat("🌧", 10), ""},
		{"10000 units", strings.Repeat("b", 10000), ""},
		{"10001 units", strings.Repeat("c", 10001), MsgTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, StaticKey("sk-test"), Config{})
			_, err := f.svc.Translate(context.Background(), Request{Text: tt.text})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			requireError(t, err, KindInput, http.StatusBadRequest, tt.wantErr)
			if f.provider.callCount() != 0 {
				t.Error("rejected input must not reach the upstream")
			}
		})
	}
}

func TestTranslate_ExpiredEntryRefetches(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	ctx := context.Background()

	if _, err := f.svc.Translate(ctx, Request{Text: sampleAFD}); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(59 * time.Minute)
	if res, _ := f.svc.Translate(ctx, Request{Text: sampleAFD}); !res.Cached {
		t.Error("entry inside the window should be served from cache")
	}
	f.clock.Advance(2 * time.Minute)
	res, err := f.svc.Translate(ctx, Request{Text: sampleAFD})
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("expired entry should not be served")
	}
	if got := f.provider.callCount(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestTranslate_MissingKey(t *testing.T) {
	f := newFixture(t, StaticKey(""), Config{})
	ctx := context.Background()

	_, err := f.svc.Translate(ctx, Request{Text: sampleAFD})
	requireError(t, err, KindConfig, http.StatusInternalServerError, MsgNoAPIKey)
	if f.provider.callCount() != 0 {
		t.Error("no upstream call without a key")
	}

	// Cached answers do not need a key.
	f.store.Set(ctx, Key(sampleAFD), "cached text")
	res, err := f.svc.Translate(ctx, Request{Text: sampleAFD})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || res.Translation != "cached text" {
		t.Errorf("got %+v", res)
	}
}

func TestTranslate_EnvKeyReadPerRequest(t *testing.T) {
	t.Setenv("AFD_TEST_KEY", "")
	f := newFixture(t, EnvKey("AFD_TEST_KEY"), Config{})

	_, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	requireError(t, err, KindConfig, http.StatusInternalServerError, MsgNoAPIKey)

	t.Setenv("AFD_TEST_KEY", "sk-late")
	if _, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD}); err != nil {
		t.Fatalf("key set after startup should be used: %v", err)
	}
}

func TestTranslate_UpstreamError(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	body := strings.Repeat("x", 500)
	f.provider.replies = []fakeReply{{err: &providers.APIError{Provider: "fake", StatusCode: 529, Body: body}}}

	_, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	te := requireError(t, err, KindUpstream, http.StatusBadGateway, MsgUpstream)
	if te.UpstreamStatus != 529 {
		t.Errorf("upstream status = %d, want 529", te.UpstreamStatus)
	}
	if len(te.Detail) != 200 || te.Detail != body[:200] {
		t.Errorf("detail length = %d, want 200", len(te.Detail))
	}
	if f.store.Len() != 0 {
		t.Error("failures must not be cached")
	}
	if f.provider.callCount() != 1 {
		t.Errorf("calls = %d, want 1 with retries disabled", f.provider.callCount())
	}
}

func TestTranslate_EmptyTranslation(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	f.provider.replies = []fakeReply{{resp: &providers.Response{Model: DefaultModel}}}

	_, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	te := requireError(t, err, KindUpstream, http.StatusBadGateway, MsgEmpty)
	if te.UpstreamStatus != 0 || te.Detail != "" {
		t.Errorf("empty translation carries no upstream detail: %+v", te)
	}
	if !errors.Is(err, providers.ErrEmptyContent) {
		t.Error("expected ErrEmptyContent in chain")
	}
	if f.store.Len() != 0 {
		t.Error("empty translation must not be cached")
	}
}

func TestTranslate_TransportError(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	f.provider.replies = []fakeReply{{err: errors.New("dial tcp: connection refused")}}

	_, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	requireError(t, err, KindInternal, http.StatusInternalServerError, MsgInternal)
}

func TestTranslate_RetriesRetryableFailures(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{Retries: 2, RetryBaseDelay: 100 * time.Millisecond})
	f.provider.replies = []fakeReply{
		{err: &providers.APIError{Provider: "fake", StatusCode: 503, Body: "busy"}},
		{err: &providers.APIError{Provider: "fake", StatusCode: 429, Body: "slow down"}},
		{resp: &providers.Response{Text: "Gusty winds tonight."}},
	}

	res, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Translation != "Gusty winds tonight." {
		t.Errorf("translation = %q", res.Translation)
	}
	if f.provider.callCount() != 3 {
		t.Errorf("calls = %d, want 3", f.provider.callCount())
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(f.sleeps) != len(want) || f.sleeps[0] != want[0] || f.sleeps[1] != want[1] {
		t.Errorf("backoff = %v, want %v", f.sleeps, want)
	}
}

func TestTranslate_NoRetryOnClientError(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{Retries: 3})
	f.provider.replies = []fakeReply{{err: &providers.APIError{Provider: "fake", StatusCode: 401, Body: "invalid x-api-key"}}}

	_, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	te := requireError(t, err, KindUpstream, http.StatusBadGateway, MsgUpstream)
	if te.UpstreamStatus != 401 || te.Detail != "invalid x-api-key" {
		t.Errorf("got %+v", te)
	}
	if f.provider.callCount() != 1 {
		t.Errorf("calls = %d, want 1", f.provider.callCount())
	}
}

func TestTranslate_CircuitOpen(t *testing.T) {
	cb := circuitbreaker.New(1, 1, time.Minute)
	f := newFixture(t, StaticKey("sk-test"), Config{}, WithBreaker(cb))
	f.provider.replies = []fakeReply{{err: &providers.APIError{Provider: "fake", StatusCode: 500, Body: "boom"}}}

	_, err := f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	requireError(t, err, KindUpstream, http.StatusBadGateway, MsgUpstream)

	_, err = f.svc.Translate(context.Background(), Request{Text: sampleAFD})
	requireError(t, err, KindUnavailable, http.StatusServiceUnavailable, MsgUnavailable)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Error("expected ErrCircuitOpen in chain")
	}
	if f.provider.callCount() != 1 {
		t.Errorf("calls = %d, want 1", f.provider.callCount())
	}
}

func TestTranslate_CallerCancellationStillCaches(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.Translate(ctx, Request{Text: sampleAFD}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.provider.ctxErrs[0] != nil {
		t.Errorf("upstream context should not carry caller cancellation, got %v", f.provider.ctxErrs[0])
	}
	if _, ok := f.store.Get(context.Background(), Key(sampleAFD)); !ok {
		t.Error("translation should be cached")
	}
}

func TestTranslate_ReusesProviderPerKey(t *testing.T) {
	f := newFixture(t, StaticKey("sk-test"), Config{})
	for _, text := range []string{sampleAFD, sampleAFD + " MORE TEXT", sampleAFD + " EVEN MORE"} {
		if _, err := f.svc.Translate(context.Background(), Request{Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	if f.connects != 1 {
		t.Errorf("connects = %d, want 1", f.connects)
	}
}

func TestTranslate_ConnectFailure(t *testing.T) {
	store := cache.NewMemory(time.Hour, cache.DefaultSweepThreshold)
	svc := New(store, StaticKey("sk-test"), func(string) (providers.Provider, error) {
		return nil, errors.New("provider not found: nope")
	}, Config{})

	_, err := svc.Translate(context.Background(), Request{Text: sampleAFD})
	requireError(t, err, KindInternal, http.StatusInternalServerError, MsgInternal)
}

func TestRegistryConnector(t *testing.T) {
	reg := providers.NewRegistry()
	var got providers.Options
	reg.Register("fake", func(o providers.Options) (providers.Provider, error) {
		got = o
		return &fakeProvider{}, nil
	})
	connect := RegistryConnector(reg, "fake", providers.Options{BaseURL: "http://upstream.test"})
	if _, err := connect("sk-abc"); err != nil {
		t.Fatal(err)
	}
	if got.APIKey != "sk-abc" || got.BaseURL != "http://upstream.test" {
		t.Errorf("options = %+v", got)
	}
}

func TestBackoffCapped(t *testing.T) {
	s := New(nil, StaticKey(""), nil, Config{RetryBaseDelay: time.Second, RetryMaxDelay: 5 * time.Second})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{40, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := s.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
