// Package builder turns crawl targets into stored catalog artifacts: each
// target is fetched, fingerprinted, written to blob storage and announced
// on the notification topic.
package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

// Waiter spaces out requests to the same host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls Builder behavior.
type Config struct {
	UserAgent   string
	ContentType string
	BlobPrefix  string
	Topic       string
}

// Builder implements crawl.Builder.
type Builder struct {
	fetcher   crawl.Fetcher
	limiter   Waiter
	hasher    crawl.Hasher
	blobStore crawl.BlobStore
	publisher crawl.Publisher
	clock     crawl.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Builder. The limiter and publisher are optional.
func New(
	fetcher crawl.Fetcher,
	limiter Waiter,
	hasher crawl.Hasher,
	blobStore crawl.BlobStore,
	publisher crawl.Publisher,
	clock crawl.Clock,
	cfg Config,
	logger *zap.Logger,
) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Builder{
		fetcher:   fetcher,
		limiter:   limiter,
		hasher:    hasher,
		blobStore: blobStore,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Build processes every target in order. A failing target does not stop the
// rest of the batch; all failures are joined into the returned error so the
// invocation reports them together.
func (b *Builder) Build(ctx context.Context, targets []crawl.Target) error {
	if b.fetcher == nil || b.hasher == nil || b.blobStore == nil || b.clock == nil {
		return errors.New("catalog builder is not fully configured")
	}
	var errs []error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("build aborted before %s: %w", target.ID, err))
			break
		}
		if err := b.buildOne(ctx, target); err != nil {
			b.logger.Error("catalog build failed",
				zap.String("target_id", target.ID),
				zap.String("url", target.URL),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("target %s: %w", target.ID, err))
			continue
		}
	}
	return errors.Join(errs...)
}

func (b *Builder) buildOne(ctx context.Context, target crawl.Target) error {
	if strings.TrimSpace(target.URL) == "" {
		return errors.New("target has no url")
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, target.URL); err != nil {
			return err
		}
	}

	req := crawl.FetchRequest{URL: target.URL, Headers: http.Header{}}
	if b.cfg.UserAgent != "" {
		req.Headers.Set("User-Agent", b.cfg.UserAgent)
	}
	resp, err := b.fetcher.Fetch(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	hash, err := b.hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	builtAt := b.clock.Now()
	uri, err := b.blobStore.PutObject(ctx, b.blobPath(target.ID, builtAt.Format("20060102"), hash), b.contentType(resp), bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	event := crawl.CatalogBuilt{
		TargetID:    target.ID,
		TargetName:  target.Name,
		URL:         target.URL,
		BlobURI:     uri,
		ContentHash: hash,
		StatusCode:  resp.StatusCode,
		BuiltAt:     builtAt,
	}
	if err := b.publish(ctx, event); err != nil {
		return err
	}
	b.logger.Info("catalog built",
		zap.String("target_id", target.ID),
		zap.String("blob_uri", uri),
		zap.String("hash", hash),
		zap.Duration("fetch_duration", resp.Duration),
	)
	return nil
}

func (b *Builder) publish(ctx context.Context, event crawl.CatalogBuilt) error {
	if b.cfg.Topic == "" || b.publisher == nil {
		return nil
	}
	if _, err := b.publisher.Publish(ctx, b.cfg.Topic, event); err != nil {
		return fmt.Errorf("publish catalog event: %w", err)
	}
	return nil
}

func (b *Builder) blobPath(targetID, day, hash string) string {
	name := fmt.Sprintf("%s/%s/%s.html", sanitizeSegment(targetID), day, hash)
	prefix := strings.Trim(b.cfg.BlobPrefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (b *Builder) contentType(resp crawl.FetchResponse) string {
	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		return ct
	}
	return b.cfg.ContentType
}

// sanitizeSegment keeps target ids from escaping their directory.
func sanitizeSegment(s string) string {
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(s))
	if s == "" {
		return "unnamed"
	}
	return s
}
