// Package static serves a target universe fixed at startup, typically from
// the config file.
package static

import (
	"context"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

// Lister returns the same targets, in the same order, on every call.
type Lister struct {
	targets []crawl.Target
}

// New copies targets so later mutation by the caller cannot shift chunk
// boundaries mid-chain.
func New(targets []crawl.Target) *Lister {
	return &Lister{targets: cloneTargets(targets)}
}

// ListTargets implements crawl.TargetLister.
func (l *Lister) ListTargets(ctx context.Context) ([]crawl.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cloneTargets(l.targets), nil
}

func cloneTargets(in []crawl.Target) []crawl.Target {
	out := make([]crawl.Target, len(in))
	for i, t := range in {
		out[i] = t
		if t.Tags != nil {
			out[i].Tags = make(map[string]string, len(t.Tags))
			for k, v := range t.Tags {
				out[i].Tags[k] = v
			}
		}
	}
	return out
}
