// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces the crawl engine uses to report its advance. Events are
// delivered on a background goroutine to pluggable sinks such as structured
// logging or Prometheus metrics; dropping them is always safe.
package progress
