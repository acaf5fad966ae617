// Package dispatcher hands the next chunk of a crawl chain to a fresh
// invocation of the crawl endpoint without waiting for it to finish.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/progress"
)

// DefaultTimeout bounds a single continuation request.
const DefaultTimeout = 10 * time.Second

// CrawlPath is the route the continuation request targets.
const CrawlPath = "/api/crawl"

// RequestIDHeader carries the chain's request id to the next invocation.
const RequestIDHeader = "X-Request-ID"

// Request describes one continuation hand-off.
type Request struct {
	// BaseURL is scheme://host[:port] of the deployment serving CrawlPath.
	BaseURL string
	// NextChunk is the chunk index the new invocation should process.
	NextChunk int
	// Size is forwarded unchanged so the whole chain shares one chunk size.
	Size int
	// Authorization is the raw header value forwarded to the next invocation.
	Authorization string
	// RequestID, when set, is sent as RequestIDHeader.
	RequestID string
	// InvocationID ties emitted progress events to the invocation that
	// triggered the hand-off.
	InvocationID [16]byte
}

// Config tunes the dispatcher.
type Config struct {
	Timeout time.Duration
}

// Dispatcher fires continuation requests in the background. A failed request
// is logged and reported but never retried; the chain simply stops there.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
	emitter progress.Emitter
	now     func() time.Time

	wg sync.WaitGroup
}

// New creates a Dispatcher. A nil client falls back to http.DefaultClient.
func New(cfg Config, client *http.Client, emitter progress.Emitter, logger *zap.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if emitter == nil {
		emitter = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client:  client,
		timeout: cfg.Timeout,
		logger:  logger,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch validates the request and starts the hand-off in the background.
// It returns as soon as the goroutine is scheduled; the outcome is only
// observable through logs and progress events. Cancellation of ctx does not
// abort the in-flight request, since ctx usually belongs to a response that
// is about to be written.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	target, err := BuildURL(req.BaseURL, req.NextChunk, req.Size)
	if err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(bg, target, req)
	}()
	return nil
}

// Wait blocks until every in-flight hand-off has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, target string, req Request) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.now()
	logger := d.logger.With(
		zap.Int("next_chunk", req.NextChunk),
		zap.Int("size", req.Size),
		zap.String("url", target),
	)
	if req.RequestID != "" {
		logger = logger.With(zap.String("request_id", req.RequestID))
	}

	err := d.do(ctx, target, req)
	evt := progress.Event{
		InvocationID: req.InvocationID,
		TS:           d.now(),
		Chunk:        req.NextChunk,
		Size:         req.Size,
		Dur:          d.now().Sub(start),
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	if err != nil {
		logger.Error("continuation dispatch failed", zap.Error(err))
		evt.Stage = progress.StageDispatchFailed
		evt.Note = err.Error()
		d.emitter.Emit(evt)
		return
	}
	logger.Info("continuation dispatched")
	evt.Stage = progress.StageDispatchSent
	d.emitter.Emit(evt)
}

func (d *Dispatcher) do(ctx context.Context, target string, req Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("build continuation request: %w", err)
	}
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}
	if req.RequestID != "" {
		httpReq.Header.Set(RequestIDHeader, req.RequestID)
	}
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send continuation request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)); err != nil {
		d.logger.Debug("drain continuation response", zap.Error(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("continuation returned status %d", resp.StatusCode)
	}
	return nil
}

// BuildURL composes {base}/api/crawl?chunk=N&size=S&auto=true.
func BuildURL(base string, nextChunk, size int) (string, error) {
	if nextChunk <= 0 {
		return "", fmt.Errorf("next chunk must be positive, got %d", nextChunk)
	}
	if size <= 0 {
		return "", fmt.Errorf("size must be positive, got %d", size)
	}
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + CrawlPath
	q := url.Values{}
	q.Set("chunk", strconv.Itoa(nextChunk))
	q.Set("size", strconv.Itoa(size))
	q.Set("auto", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ErrNoBaseURL reports that no usable deployment address could be derived.
var ErrNoBaseURL = errors.New("no base url available for continuation")

// Options controls base URL resolution.
type Options struct {
	// BaseURL, when set, wins over anything derived from the request.
	BaseURL string
	// TrustedHostHeader names a header set by the hosting platform that
	// carries the public host name, e.g. X-Forwarded-Host.
	TrustedHostHeader string
}

// ResolveBaseURL picks the address the next invocation should be sent to.
// Order: configured override, the request's own origin, then https plus the
// trusted host header.
func ResolveBaseURL(r *http.Request, opts Options) (string, error) {
	if opts.BaseURL != "" {
		u, err := parseBase(opts.BaseURL)
		if err != nil {
			return "", fmt.Errorf("configured base url: %w", err)
		}
		return u.String(), nil
	}
	if r == nil {
		return "", ErrNoBaseURL
	}
	if r.Host != "" {
		if u, err := parseBase(requestScheme(r) + "://" + r.Host); err == nil {
			return u.String(), nil
		}
	}
	if opts.TrustedHostHeader != "" {
		if host := strings.TrimSpace(r.Header.Get(opts.TrustedHostHeader)); host != "" {
			if u, err := parseBase("https://" + host); err == nil {
				return u.String(), nil
			}
		}
	}
	return "", ErrNoBaseURL
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); proto == "https" || proto == "http" {
		return proto
	}
	return "http"
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", raw)
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " /") {
		return nil, fmt.Errorf("base url %q has no valid host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
