package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/catalog"
)

type fakeSite struct {
	mu           sync.Mutex
	detailHits   map[string]int
	listRequests int
}

// newFakeSite serves two list pages for expansion hBP04. Page 1 lists cards
// 77 and 78; page 2 repeats 77, so a crawl must stop there without fetching
// it twice.
func newFakeSite(t *testing.T) (*fakeSite, *httptest.Server) {
	t.Helper()
	site := &fakeSite{detailHits: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/cardlist/cardsearch/", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.listRequests++
		site.mu.Unlock()
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `<html><body>
				<div class="cardlist-Result_Target_Num"><span class="num">2</span></div>
				<a href="/cardlist/?id=77">hBP04-002</a>
				<a href="/cardlist/?id=78">hBP04-003</a>
				</body></html>`)
		default:
			fmt.Fprint(w, `<html><body>
				<a href="/cardlist/?id=77">hBP04-002</a>
				</body></html>`)
		}
	})
	mux.HandleFunc("/cardlist/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		site.mu.Lock()
		site.detailHits[id]++
		site.mu.Unlock()
		number := map[string]string{"77": "hBP04-002", "78": "hBP04-003"}[id]
		fmt.Fprintf(w, `<html><body><div class="cardlist-Detail">
			<p>テストカード%s</p>
			<p>カードタイプ</p><p>ホロメン</p>
			<p>カードナンバー</p><p>%s</p>
			</div></body></html>`, id, number)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return site, srv
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		UserAgent:   "catalog-test/1.0",
		Delay:       0,
		Workers:     2,
		MaxPages:    5,
		CommitEvery: 2,
		Timeout:     5 * time.Second,
	}
}

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "crawl.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestCrawlDedupAndTermination runs a full crawl against a fake site and
// verifies the two core behaviors: a detail id listed on multiple pages is
// fetched exactly once, and pagination stops on the first page that yields
// nothing new.
func TestCrawlDedupAndTermination(t *testing.T) {
	t.Parallel()

	site, srv := newFakeSite(t)
	store := openTestStore(t)

	engine := New(testConfig(srv.URL), store, zap.NewNop(), nil, nil)
	summary, err := engine.Crawl(context.Background(), "hBP04")
	require.NoError(t, err)

	assert.EqualValues(t, 2, summary.Saved)
	assert.EqualValues(t, 0, summary.Skipped)
	assert.Equal(t, 2, summary.Pages)

	site.mu.Lock()
	defer site.mu.Unlock()
	assert.Equal(t, 1, site.detailHits["77"], "detail 77 must be fetched once")
	assert.Equal(t, 1, site.detailHits["78"])
	assert.Equal(t, 2, site.listRequests)
}

// TestCrawlPersistsParsedCards confirms the pipeline lands normalized
// records in the store.
func TestCrawlPersistsParsedCards(t *testing.T) {
	t.Parallel()

	_, srv := newFakeSite(t)
	store := openTestStore(t)

	engine := New(testConfig(srv.URL), store, zap.NewNop(), nil, nil)
	_, err := engine.Crawl(context.Background(), "hBP04")
	require.NoError(t, err)

	var numbers []string
	require.NoError(t, store.DB().Select(&numbers,
		`SELECT card_number FROM prints ORDER BY card_number`))
	assert.Equal(t, []string{"hBP04-002", "hBP04-003"}, numbers)

	var cardType string
	require.NoError(t, store.DB().Get(&cardType,
		`SELECT card_type FROM prints WHERE card_number='hBP04-002'`))
	assert.Equal(t, "ホロメン", cardType)

	var raw string
	require.NoError(t, store.DB().Get(&raw, `
        SELECT st.raw_text FROM source_text st
        JOIN prints p ON p.print_id = st.print_id
        WHERE p.card_number='hBP04-002'`))
	assert.Contains(t, raw, "カードタイプ ホロメン")
	assert.NotContains(t, raw, "hBP04-002", "card number is stored structurally, not in text")
}

// TestCrawlFirstPageFailureIsFatal verifies an unreachable first list page
// fails the run instead of silently producing an empty catalog.
func TestCrawlFirstPageFailureIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := openTestStore(t)
	engine := New(testConfig(srv.URL), store, zap.NewNop(), nil, nil)
	_, err := engine.Crawl(context.Background(), "hBP04")
	require.Error(t, err)
}

// TestCrawlMaxCards confirms the card cap stops enqueuing mid-page.
func TestCrawlMaxCards(t *testing.T) {
	t.Parallel()

	site, srv := newFakeSite(t)
	store := openTestStore(t)

	cfg := testConfig(srv.URL)
	cfg.MaxCards = 1
	engine := New(cfg, store, zap.NewNop(), nil, nil)
	summary, err := engine.Crawl(context.Background(), "hBP04")
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Saved)
	site.mu.Lock()
	defer site.mu.Unlock()
	assert.Equal(t, 1, site.detailHits["77"]+site.detailHits["78"])
}

// TestCrawlHonorsDetectedMaxPage verifies the last page number advertised by
// the pagination links bounds the crawl: page 2 would serve a fresh card, but
// it must never be requested when page 1 links only to itself.
func TestCrawlHonorsDetectedMaxPage(t *testing.T) {
	t.Parallel()

	site := &fakeSite{detailHits: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/cardlist/cardsearch/", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.listRequests++
		site.mu.Unlock()
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `<html><body>
				<a href="/cardlist/cardsearch/?expansion=hBP04&page=1">1</a>
				<a href="/cardlist/?id=77">hBP04-002</a>
				</body></html>`)
		default:
			fmt.Fprint(w, `<html><body>
				<a href="/cardlist/?id=79">hBP04-004</a>
				</body></html>`)
		}
	})
	mux.HandleFunc("/cardlist/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		site.mu.Lock()
		site.detailHits[id]++
		site.mu.Unlock()
		fmt.Fprintf(w, `<html><body><div class="cardlist-Detail">
			<p>テストカード%s</p>
			<p>カードナンバー</p><p>hBP04-00%s</p>
			</div></body></html>`, id, id[len(id)-1:])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := openTestStore(t)
	engine := New(testConfig(srv.URL), store, zap.NewNop(), nil, nil)
	summary, err := engine.Crawl(context.Background(), "hBP04")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pages)
	site.mu.Lock()
	defer site.mu.Unlock()
	assert.Equal(t, 1, site.listRequests, "page 2 must not be fetched past the detected bound")
	assert.Zero(t, site.detailHits["79"])
}

// TestDiscoverSets reads expansion codes off the search page.
func TestDiscoverSets(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/cardlist/cardsearch/?expansion=hBP04">hBP04</a>
			<a href="/cardlist/cardsearch/?expansion=hSD01">hSD01</a>
			</body></html>`)
	}))
	t.Cleanup(srv.Close)

	engine := New(testConfig(srv.URL), nil, zap.NewNop(), nil, nil)
	sets, err := engine.DiscoverSets()
	require.NoError(t, err)
	assert.Equal(t, []string{"hBP04", "hSD01"}, sets)
}

// TestSessionMarkSeen checks the dedup set and counters.
func TestSessionMarkSeen(t *testing.T) {
	t.Parallel()

	sess := NewSession()
	assert.True(t, sess.MarkSeen(77))
	assert.False(t, sess.MarkSeen(77))
	assert.True(t, sess.MarkSeen(78))

	sess.AddTotal(10)
	sess.AddProcessed()
	sess.AddSkipped()

	st := sess.Snapshot()
	assert.EqualValues(t, 1, st.Processed)
	assert.EqualValues(t, 1, st.Skipped)
	assert.EqualValues(t, 10, st.Total)
	assert.InDelta(t, 10.0, st.Percent, 0.001)
}

// TestConfigValidate covers the rejection paths.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := testConfig("https://example.com")
	require.NoError(t, valid.Validate())

	noBase := valid
	noBase.BaseURL = ""
	assert.Error(t, noBase.Validate())

	noWorkers := valid
	noWorkers.Workers = 0
	assert.Error(t, noWorkers.Validate())

	badBatch := valid
	badBatch.CommitEvery = 0
	assert.Error(t, badBatch.Validate())
}
