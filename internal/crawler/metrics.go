package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks the number of HTTP requests dispatched by the crawl engine.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "The total number of HTTP requests sent.",
	})
	// TotalRequestErrors tracks the number of requests that resulted in an error.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_request_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// TotalParseErrors tracks detail pages that could not be parsed into a card.
	TotalParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_parse_errors_total",
		Help: "The total number of detail pages that failed to parse.",
	})
	// TotalSaved tracks cards persisted to the store.
	TotalSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cards_saved_total",
		Help: "The total number of cards upserted into the store.",
	})
	// TotalRateLimitHits tracks 429 responses from the site.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_rate_limit_hits_total",
		Help: "The total number of times the crawl was rate limited.",
	})
)
