package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ferro-labs/afd-translator/internal/cache"
	"github.com/ferro-labs/afd-translator/internal/circuitbreaker"
	"github.com/ferro-labs/afd-translator/internal/logging"
	"github.com/ferro-labs/afd-translator/internal/metrics"
	"github.com/ferro-labs/afd-translator/providers"
)

// Input limits in UTF-16 code units.
const (
	MinTextLength = 20
	MaxTextLength = 10000
)

// Upstream defaults.
const (
	DefaultModel          = "claude-3-5-haiku-latest"
	DefaultMaxTokens      = 1024
	DefaultTimeout        = 60 * time.Second
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 10 * time.Second

	maxDetailLength = 200
)

// Client-facing error messages.
const (
	MsgTooShort    = "Text too short"
	MsgTooLong     = "Text too long"
	MsgInvalidBody = "Invalid request body"
	MsgNoAPIKey    = "API key not configured"
	MsgUpstream    = "Translation service error"
	MsgEmpty       = "Empty translation"
	MsgUnavailable = "Translation service unavailable"
	MsgInternal    = "Internal error"
	MsgPostOnly    = "POST only"
)

// Kind classifies a translate failure. The values double as the outcome
// label of metrics.RequestsTotal.
type Kind string

const (
	KindInput       Kind = "input_error"
	KindConfig      Kind = "config_error"
	KindUpstream    Kind = "upstream_error"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal_error"
)

// Error is a translate failure already mapped to its HTTP answer.
// UpstreamStatus and Detail are set only for non-2xx upstream answers.
type Error struct {
	Kind           Kind
	Status         int
	Message        string
	UpstreamStatus int
	Detail         string
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError unwraps err into an *Error. Anything else is reported as an
// internal error.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: MsgInternal, Err: err}
}

func inputError(msg string) *Error {
	return &Error{Kind: KindInput, Status: http.StatusBadRequest, Message: msg}
}

// KeySource supplies the upstream credential at request time.
type KeySource interface {
	APIKey(ctx context.Context) (string, bool)
}

// EnvKey reads the credential from the named environment variable on every
// call, so a key set after startup is picked up without a restart.
type EnvKey string

func (k EnvKey) APIKey(context.Context) (string, bool) {
	v := strings.TrimSpace(os.Getenv(string(k)))
	return v, v != ""
}

// StaticKey is a fixed credential.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, bool) {
	return string(k), k != ""
}

// Connector builds a provider client for a credential.
type Connector func(apiKey string) (providers.Provider, error)

// RegistryConnector returns a Connector that builds name from reg with opts,
// filling in the credential per call.
func RegistryConnector(reg *providers.Registry, name string, opts providers.Options) Connector {
	return func(apiKey string) (providers.Provider, error) {
		o := opts
		o.APIKey = apiKey
		return reg.Build(name, o)
	}
}

// Config holds the upstream call settings.
type Config struct {
	Model          string
	MaxTokens      int
	Timeout        time.Duration
	Retries        int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return c
}

// Request is one translation request. Section and Office only label the
// prompt.
type Request struct {
	Text    string
	Section string
	Office  string
}

// Result is a successful translation.
type Result struct {
	Translation string
	Cached      bool
	Key         string
	Provider    string
	Model       string
	Usage       providers.Usage
}

// Option configures a Service.
type Option func(*Service)

// WithBreaker guards upstream calls with cb.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// WithSleep replaces the backoff wait between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// Service validates text, serves cached translations and calls the upstream
// on a miss.
type Service struct {
	store   cache.Store
	keys    KeySource
	connect Connector
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	clients map[string]providers.Provider
}

// New creates a Service. store and keys are required.
func New(store cache.Store, keys KeySource, connect Connector, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:   store,
		keys:    keys,
		connect: connect,
		cfg:     cfg.withDefaults(),
		sleep:   sleepContext,
		clients: make(map[string]providers.Provider),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the configured upstream model id.
func (s *Service) Model() string { return s.cfg.Model }

// Translate returns the plain-language rendering of req.Text. Failures are
// always *Error.
func (s *Service) Translate(ctx context.Context, req Request) (*Result, error) {
	n := Length(req.Text)
	if n < MinTextLength {
		return nil, inputError(MsgTooShort)
	}
	if n > MaxTextLength {
		return nil, inputError(MsgTooLong)
	}

	key := Key(req.Text)
	if e, ok := s.store.Get(ctx, key); ok {
		return &Result{Translation: e.Translation, Cached: true, Key: key}, nil
	}

	apiKey, ok := s.keys.APIKey(ctx)
	if !ok {
		return nil, &Error{Kind: KindConfig, Status: http.StatusInternalServerError, Message: MsgNoAPIKey}
	}
	p, err := s.provider(apiKey)
	if err != nil {
		return nil, AsError(fmt.Errorf("build provider: %w", err))
	}

	// A finished generation is still cached when the caller goes away.
	upCtx := context.WithoutCancel(ctx)
	log := logging.FromContext(ctx).With("provider", p.Name(), "cache_key", key)

	if s.breaker != nil && !s.breaker.Allow() {
		metrics.UpstreamErrors.WithLabelValues(p.Name(), "circuit_open").Inc()
		log.Warn("upstream circuit open")
		return nil, &Error{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Message: MsgUnavailable, Err: circuitbreaker.ErrCircuitOpen}
	}

	resp, err := s.generate(upCtx, p, providers.Request{
		Model:     s.cfg.Model,
		System:    SystemPrompt(req.Section, req.Office),
		Prompt:    req.Text,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, s.upstreamFailure(log, err)
	}
	s.recordSuccess()

	metrics.TokensTotal.WithLabelValues(p.Name(), "input").Add(float64(resp.Usage.InputTokens))
	metrics.TokensTotal.WithLabelValues(p.Name(), "output").Add(float64(resp.Usage.OutputTokens))

	if resp.Text == "" {
		metrics.UpstreamErrors.WithLabelValues(p.Name(), "empty").Inc()
		log.Warn("upstream returned empty translation", "model", resp.Model)
		return nil, &Error{Kind: KindUpstream, Status: http.StatusBadGateway, Message: MsgEmpty, Err: providers.ErrEmptyContent}
	}

	s.store.Set(upCtx, key, resp.Text)
	if sized, ok := s.store.(interface{ Len() int }); ok {
		metrics.CacheEntries.Set(float64(sized.Len()))
	}

	return &Result{
		Translation: resp.Text,
		Key:         key,
		Provider:    p.Name(),
		Model:       resp.Model,
		Usage:       resp.Usage,
	}, nil
}

func (s *Service) provider(apiKey string) (providers.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.clients[apiKey]; ok {
		return p, nil
	}
	p, err := s.connect(apiKey)
	if err != nil {
		return nil, err
	}
	s.clients[apiKey] = p
	return p, nil
}

// generate calls p with a per-attempt timeout, retrying retryable failures
// with exponential backoff.
func (s *Service) generate(ctx context.Context, p providers.Provider, req providers.Request) (*providers.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.backoff(attempt-1)); err != nil {
				return nil, lastErr
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		start := time.Now()
		resp, err := p.Generate(callCtx, req)
		cancel()
		metrics.UpstreamDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		if err == nil {
			return resp, nil
		}

		lastErr = err
		metrics.UpstreamErrors.WithLabelValues(p.Name(), errorKind(err)).Inc()
		if !retryable(err) || attempt == s.cfg.Retries {
			break
		}
		logging.FromContext(ctx).Warn("retrying upstream call",
			"provider", p.Name(), "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (s *Service) backoff(attempt int) time.Duration {
	delay := s.cfg.RetryBaseDelay
	for i := 0; i < attempt && delay < s.cfg.RetryMaxDelay; i++ {
		delay *= 2
	}
	if delay > s.cfg.RetryMaxDelay {
		delay = s.cfg.RetryMaxDelay
	}
	return delay
}

func (s *Service) upstreamFailure(log *slog.Logger, err error) *Error {
	apiErr, ok := providers.AsAPIError(err)
	if !ok {
		s.recordFailure()
		log.Error("upstream call failed", "error", err)
		return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: MsgInternal, Err: err}
	}
	if apiErr.Retryable() {
		s.recordFailure()
	}
	log.Error("upstream returned error", "status", apiErr.StatusCode, "error", err)
	return &Error{
		Kind:           KindUpstream,
		Status:         http.StatusBadGateway,
		Message:        MsgUpstream,
		UpstreamStatus: apiErr.StatusCode,
		Detail:         truncateUnits(apiErr.Body, maxDetailLength),
		Err:            err,
	}
}

func (s *Service) recordSuccess() {
	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}
}

func (s *Service) recordFailure() {
	if s.breaker != nil {
		s.breaker.RecordFailure()
	}
}

// retryable reports whether err may clear on a repeat. Upstream 4xx other
// than 429 never do.
func retryable(err error) bool {
	if apiErr, ok := providers.AsAPIError(err); ok {
		return apiErr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

func errorKind(err error) string {
	apiErr, ok := providers.AsAPIError(err)
	switch {
	case !ok:
		return "transport"
	case apiErr.StatusCode >= 500:
		return "5xx"
	default:
		return "4xx"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
