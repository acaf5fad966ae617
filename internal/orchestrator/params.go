package orchestrator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names accepted by the crawl endpoint.
const (
	ParamChunk = "chunk"
	ParamSize  = "size"
	ParamAuto  = "auto"
)

// Params are the validated inputs of one invocation.
type Params struct {
	Chunk int
	Size  int
	Auto  bool
}

// ParseParams reads chunk (default 0), size (default defaultSize) and auto
// (default true). Only values strconv.ParseBool reads as false turn auto off;
// anything unparseable keeps the default.
func ParseParams(q url.Values, defaultSize int) (Params, error) {
	p := Params{Chunk: 0, Size: defaultSize, Auto: true}

	if raw, ok := lookup(q, ParamChunk); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("%w: chunk %q must be a non-negative integer", ErrBadRequest, raw)
		}
		p.Chunk = n
	}
	if raw, ok := lookup(q, ParamSize); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, fmt.Errorf("%w: size %q must be a positive integer", ErrBadRequest, raw)
		}
		p.Size = n
	}
	if p.Size < 1 {
		return Params{}, fmt.Errorf("%w: size must be a positive integer", ErrBadRequest)
	}
	if raw, ok := lookup(q, ParamAuto); ok {
		if b, err := strconv.ParseBool(raw); err == nil {
			p.Auto = b
		}
	}
	return p, nil
}

// lookup distinguishes an absent key from a present but empty one; "?chunk="
// is rejected rather than defaulted.
func lookup(q url.Values, key string) (string, bool) {
	if !q.Has(key) {
		return "", false
	}
	return strings.TrimSpace(q.Get(key)), true
}
