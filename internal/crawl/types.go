package crawl

import (
	"net/http"
	"time"
)

// Target identifies one catalog configuration to crawl. The orchestrator never
// inspects a Target; it only counts and slices the universe.
type Target struct {
	ID   string            `json:"id" mapstructure:"id"`
	Name string            `json:"name" mapstructure:"name"`
	URL  string            `json:"url" mapstructure:"url"`
	Tags map[string]string `json:"tags,omitempty" mapstructure:"tags"`
}

// FetchRequest captures everything needed to fetch a target URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// CatalogBuilt is published once per target after its artifact is stored.
type CatalogBuilt struct {
	TargetID    string    `json:"target_id"`
	TargetName  string    `json:"target_name,omitempty"`
	URL         string    `json:"url"`
	BlobURI     string    `json:"blob_uri"`
	ContentHash string    `json:"content_hash"`
	StatusCode  int       `json:"status_code"`
	BuiltAt     time.Time `json:"built_at"`
}

// Attributes exposes routing metadata for message brokers.
func (c CatalogBuilt) Attributes() map[string]string {
	return map[string]string{
		"event":     "catalog.built",
		"target_id": c.TargetID,
	}
}
