// Package crawler implements the crawl engine: sequential pagination over the
// card-search list pages, concurrent detail-page fetches through Colly, and
// batched persistence into the catalog store. All per-run state lives in an
// explicit Session so concurrent runs share nothing.
package crawler
