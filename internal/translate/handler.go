package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ferro-labs/afd-translator/internal/logging"
	"github.com/ferro-labs/afd-translator/internal/metrics"
	"github.com/ferro-labs/afd-translator/internal/requestlog"
)

// maxBodyBytes caps the request body. Any body this large already exceeds
// MaxTextLength.
const maxBodyBytes = 1 << 20

const requestSchemaJSON = `{
	"type": "object",
	"properties": {
		"text":    {"type": ["string", "null"]},
		"section": {"type": ["string", "null"]},
		"office":  {"type": ["string", "null"]}
	}
}`

var requestSchema = jsonschema.MustCompileString("translate-request.json", requestSchemaJSON)

// Translator is the operation the handler serves.
type Translator interface {
	Translate(ctx context.Context, req Request) (*Result, error)
}

type requestBody struct {
	Text    *string `json:"text"`
	Section *string `json:"section"`
	Office  *string `json:"office"`
}

type successBody struct {
	Translation string `json:"translation"`
	Cached      bool   `json:"cached"`
}

type errorBody struct {
	Error  string  `json:"error"`
	Status int     `json:"status,omitempty"`
	Detail *string `json:"detail,omitempty"`
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAllowedOrigins restricts Access-Control-Allow-Origin to origins.
func WithAllowedOrigins(origins ...string) HandlerOption {
	return func(h *Handler) { h.cors = corsHeaders(origins) }
}

// WithRequestLog records every POST outcome to w.
func WithRequestLog(w requestlog.Writer) HandlerOption {
	return func(h *Handler) { h.requestLog = w }
}

// WithUpstreamLabel names the provider and model in request log entries
// for answers that did not reach the upstream.
func WithUpstreamLabel(provider, model string) HandlerOption {
	return func(h *Handler) {
		h.provider = provider
		h.model = model
	}
}

// Handler is the HTTP face of the translate operation. Every failure,
// panics included, is answered with a JSON error body.
type Handler struct {
	svc        Translator
	cors       func(http.ResponseWriter, *http.Request)
	requestLog requestlog.Writer
	provider   string
	model      string
}

// NewHandler wraps svc.
func NewHandler(svc Translator, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:        svc,
		cors:       corsHeaders(nil),
		requestLog: requestlog.NoopWriter{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	h.cors(w, r)

	defer func() {
		if rec := recover(); rec != nil {
			logging.FromContext(r.Context()).Error("translate handler panic",
				"panic", rec, "stack", string(debug.Stack()))
			metrics.RequestsTotal.WithLabelValues(string(KindInternal)).Inc()
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: MsgInternal})
		}
	}()

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		metrics.RequestsTotal.WithLabelValues("rejected").Inc()
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: MsgPostOnly})
		return
	}

	req, err := decodeRequest(w, r)
	var res *Result
	if err == nil {
		res, err = h.svc.Translate(r.Context(), req)
	}

	elapsed := time.Since(start)
	entry := requestlog.Entry{
		TraceID:    logging.TraceIDFromContext(r.Context()),
		CacheKey:   Key(req.Text),
		Section:    req.Section,
		Office:     req.Office,
		TextLength: Length(req.Text),
		Provider:   h.provider,
		Model:      h.model,
		LatencyMS:  elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	if err != nil {
		te := AsError(err)
		if te.Kind == KindInternal {
			logging.FromContext(r.Context()).Error("translate failed", "error", err)
		}
		metrics.RequestsTotal.WithLabelValues(string(te.Kind)).Inc()
		metrics.RequestDuration.WithLabelValues("false").Observe(elapsed.Seconds())
		entry.Status = te.Status
		entry.ErrorMessage = te.Error()
		h.record(r.Context(), entry)

		body := errorBody{Error: te.Message}
		if te.UpstreamStatus != 0 {
			detail := te.Detail
			body.Status = te.UpstreamStatus
			body.Detail = &detail
		}
		writeJSON(w, te.Status, body)
		return
	}

	outcome := "miss"
	if res.Cached {
		outcome = "hit"
	}
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	metrics.RequestDuration.WithLabelValues(strconv.FormatBool(res.Cached)).Observe(elapsed.Seconds())
	entry.Status = http.StatusOK
	entry.Cached = res.Cached
	if res.Provider != "" {
		entry.Provider = res.Provider
	}
	if res.Model != "" {
		entry.Model = res.Model
	}
	entry.InputTokens = res.Usage.InputTokens
	entry.OutputTokens = res.Usage.OutputTokens
	h.record(r.Context(), entry)

	writeJSON(w, http.StatusOK, successBody{Translation: res.Translation, Cached: res.Cached})
}

func (h *Handler) record(ctx context.Context, entry requestlog.Entry) {
	if err := h.requestLog.Write(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Warn("request log write failed", "error", err)
	}
}

// decodeRequest reads and validates the body. An empty body reads as {} so
// it fails on text length rather than shape.
func decodeRequest(w http.ResponseWriter, r *http.Request) (Request, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Request{}, inputError(MsgTooLong)
		}
		return Request{}, &Error{Kind: KindInput, Status: http.StatusBadRequest, Message: MsgInvalidBody, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Request{}, &Error{Kind: KindInput, Status: http.StatusBadRequest, Message: MsgInvalidBody, Err: err}
	}
	if err := requestSchema.Validate(doc); err != nil {
		return Request{}, &Error{Kind: KindInput, Status: http.StatusBadRequest, Message: MsgInvalidBody, Err: err}
	}

	var body requestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Request{}, &Error{Kind: KindInput, Status: http.StatusBadRequest, Message: MsgInvalidBody, Err: err}
	}
	return Request{
		Text:    deref(body.Text),
		Section: strings.TrimSpace(deref(body.Section)),
		Office:  strings.TrimSpace(deref(body.Office)),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
