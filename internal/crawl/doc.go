// Package crawl holds the Target model, the collaborator interfaces the
// orchestrator consumes (TargetLister, Builder) and the ones the catalog builder
// consumes (Fetcher, BlobStore, Publisher, Hasher), plus the Executor that
// runs one chunk's worth of targets through the Builder.
package crawl
