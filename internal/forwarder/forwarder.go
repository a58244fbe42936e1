package forwarder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/ai-router/internal/backend"
	"github.com/angeloszaimis/ai-router/internal/registry"
)

// Forwarder implements the failover forwarding loop: it walks the ordered
// candidate list and relays the inbound request to each backend in turn
// until one answers, reporting every outcome to that backend's circuit
// breaker.
//
// There is no master deadline: the worst case latency is bounded by
// maxAttempts times the largest per-backend timeout.
type Forwarder struct {
	registry    *registry.Registry
	maxAttempts int
	transport   http.RoundTripper
	logger      *slog.Logger
}

// Result is a successful forward: the backend that answered and its
// response. The caller owns the response body.
type Result struct {
	Backend  string
	Attempts int
	Failed   []*AttemptError
	Response *http.Response
}

func New(reg *registry.Registry, maxAttempts int, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		registry:    reg,
		maxAttempts: maxAttempts,
		transport:   http.DefaultTransport,
		logger:      logger,
	}
}

// SetTransport overrides the outbound round tripper. Used by tests.
func (f *Forwarder) SetTransport(rt http.RoundTripper) {
	f.transport = rt
}

// Forward relays r to the first candidate that answers. Method, path,
// query and body pass through byte-for-byte; hop-by-hop headers are
// stripped. A response below 500 is returned verbatim, whoever produced
// it: a backend's 4xx is an application answer, not a router fault.
// Timeouts, connection errors and 5xx responses trip failover to the next
// candidate.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request) (*Result, error) {
	candidates := f.registry.Candidates()
	if len(candidates) == 0 {
		return nil, ErrNoAvailableBackend
	}

	// The body must be buffered so it can be replayed on failover.
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	var attempts []*AttemptError

	for _, candidate := range candidates {
		if len(attempts) >= f.maxAttempts {
			break
		}

		breaker := f.registry.Breaker(candidate.Name())
		if !breaker.Acquire() {
			// Lost the race for the single half-open trial slot.
			continue
		}

		res, err := f.attempt(ctx, candidate, r, body)
		if err != nil {
			if ctx.Err() != nil {
				// The client went away mid-request. That is not a backend
				// fault: hand back the trial slot, charge nothing, and
				// stop trying candidates on a dead context.
				breaker.Release()
				f.logger.Info("Forwarding aborted, inbound request context done",
					slog.String("backend", candidate.Name()),
					slog.String("error", ctx.Err().Error()))
				return nil, ctx.Err()
			}
			breaker.RecordFailure()
			attempts = append(attempts, &AttemptError{Backend: candidate.Name(), Err: err})
			f.logger.Warn("Forward attempt failed",
				slog.String("backend", candidate.Name()),
				slog.String("error", err.Error()))
			continue
		}

		if res.StatusCode >= http.StatusInternalServerError {
			breaker.RecordFailure()
			attempts = append(attempts, &AttemptError{Backend: candidate.Name(), StatusCode: res.StatusCode})
			f.logger.Warn("Forward attempt failed",
				slog.String("backend", candidate.Name()),
				slog.Int("status", res.StatusCode))
			// Drain a bounded amount so the connection can be reused;
			// Close discards whatever an oversized error body has left.
			io.Copy(io.Discard, io.LimitReader(res.Body, maxDrainBytes))
			res.Body.Close()
			continue
		}

		breaker.RecordSuccess()
		return &Result{
			Backend:  candidate.Name(),
			Attempts: len(attempts) + 1,
			Failed:   attempts,
			Response: res,
		}, nil
	}

	if len(attempts) == 0 {
		// Every candidate lost its trial-slot race; nothing was tried.
		return nil, ErrNoAvailableBackend
	}

	return nil, &AggregateError{Attempts: attempts}
}

func (f *Forwarder) attempt(
	ctx context.Context,
	candidate *backend.Backend,
	r *http.Request,
	body []byte,
) (*http.Response, error) {
	d := candidate.Descriptor()

	attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)

	out, err := http.NewRequestWithContext(attemptCtx, r.Method, buildTargetURL(d, r), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}

	copyHeaders(out.Header, r.Header)
	appendForwardedFor(out.Header, r.RemoteAddr)

	res, err := f.transport.RoundTrip(out)
	if err != nil {
		cancel()
		return nil, err
	}

	// The attempt context must outlive this call so the caller can read
	// the body; tie its cancellation to the body instead.
	res.Body = &cancelOnCloseBody{ReadCloser: res.Body, cancel: cancel}
	return res, nil
}

// maxDrainBytes caps how much of a failed attempt's body is read before
// failing over to the next candidate.
const maxDrainBytes = 64 << 10

func buildTargetURL(d backend.Descriptor, r *http.Request) string {
	target := *d.URL
	target.Path = strings.TrimSuffix(d.URL.Path, "/") + r.URL.Path
	// Joining the escaped forms keeps percent-encoded segments intact;
	// url.URL.String would otherwise re-encode from the decoded Path and
	// send the backend a different resource.
	target.RawPath = strings.TrimSuffix(d.URL.EscapedPath(), "/") + r.URL.EscapedPath()
	target.RawQuery = r.URL.RawQuery
	return target.String()
}

// Hop-by-hop headers per RFC 9110 section 7.6.1. These are connection
// specific and must not be relayed.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}

	for _, name := range src.Values("Connection") {
		for _, h := range strings.Split(name, ",") {
			dst.Del(strings.TrimSpace(h))
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
}

func appendForwardedFor(h http.Header, remoteAddr string) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return
	}

	if prior := h.Get("X-Forwarded-For"); prior != "" {
		h.Set("X-Forwarded-For", prior+", "+host)
	} else {
		h.Set("X-Forwarded-For", host)
	}
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
