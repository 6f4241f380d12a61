package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/cardpage"
	"github.com/SmallTyrant/hocg-catalog/internal/catalog"
	"github.com/SmallTyrant/hocg-catalog/internal/images"
	"github.com/SmallTyrant/hocg-catalog/internal/progress"
)

const (
	ctxKeyCardNumber = "card_number"
	ctxKeyDetailID   = "detail_id"
	ctxKeySet        = "set"

	heartbeatInterval = 10 * time.Second
)

// Engine orchestrates a crawl: sequential list-page pagination per expansion,
// concurrent detail-page fetches, parse and normalize, then batched upserts
// into the store.
type Engine struct {
	cfg     Config
	store   *catalog.Store
	logger  *zap.Logger
	emitter progress.Emitter
	images  *images.Cache
}

// New wires an Engine. The image cache is optional; pass nil to skip image
// downloads. A nil emitter disables progress reporting.
func New(cfg Config, store *catalog.Store, logger *zap.Logger, emitter progress.Emitter, imgCache *images.Cache) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Discard{}
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		emitter: emitter,
		images:  imgCache,
	}
}

// Summary reports the outcome of one crawl run.
type Summary struct {
	RunID   string
	Sets    []string
	Pages   int
	Saved   int64
	Skipped int64
	Elapsed time.Duration
}

// Crawl runs a full crawl for one expansion code, or for every discovered
// expansion when setCode is "all". It returns once all detail fetches have
// completed and the final batch is flushed.
func (e *Engine) Crawl(ctx context.Context, setCode string) (Summary, error) {
	sess := NewSession()
	label := strings.ToUpper(strings.TrimSpace(setCode))
	if label == "" {
		label = "ALL"
	}

	e.emit(sess, progress.Event{Stage: progress.StageRunStart, SetCode: label})

	stopHB := e.startHeartbeat(ctx, sess, label)
	defer stopHB()

	sets, err := e.resolveSets(setCode)
	if err != nil {
		e.emit(sess, progress.Event{Stage: progress.StageRunError, SetCode: label, Note: err.Error()})
		return Summary{RunID: sess.ID.String()}, err
	}

	run := &crawlRun{engine: e, sess: sess}
	run.detail = e.newDetailCollector(ctx, run)

	pages := 0
	for i, set := range sets {
		if ctx.Err() != nil {
			break
		}
		n, err := e.crawlSet(ctx, run, set, i == 0)
		pages += n
		if err != nil {
			run.detail.Wait()
			run.flush(ctx, true)
			e.emit(sess, progress.Event{Stage: progress.StageRunError, SetCode: label, Note: err.Error()})
			return e.summary(sess, sets, pages), err
		}
		if run.limitReached() {
			break
		}
	}

	run.detail.Wait()
	run.flush(ctx, true)

	if err := ctx.Err(); err != nil {
		e.emit(sess, progress.Event{Stage: progress.StageRunError, SetCode: label, Note: err.Error()})
		return e.summary(sess, sets, pages), fmt.Errorf("crawl interrupted: %w", err)
	}
	e.emit(sess, progress.Event{Stage: progress.StageRunDone, SetCode: label})
	return e.summary(sess, sets, pages), nil
}

// DiscoverSets fetches the card search page and returns the expansion codes
// its filter form offers.
func (e *Engine) DiscoverSets() ([]string, error) {
	body, err := e.fetchOnce(e.searchURL("", 1, "page"))
	if err != nil {
		return nil, fmt.Errorf("discover sets: %w", err)
	}
	return cardpage.ExpansionCodes(body), nil
}

func (e *Engine) resolveSets(setCode string) ([]string, error) {
	code := strings.TrimSpace(setCode)
	if code != "" && !strings.EqualFold(code, "all") {
		return []string{code}, nil
	}
	sets, err := e.DiscoverSets()
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		// No filter form found; crawl the unfiltered list instead.
		return []string{""}, nil
	}
	return sets, nil
}

// crawlSet paginates one expansion's list pages, enqueuing unseen detail IDs
// on the async collector. Pagination stops when a page yields zero new IDs,
// the page cap is hit, or the card cap is reached. A fetch failure on the
// very first page of the run is fatal; later failures end the set only.
func (e *Engine) crawlSet(ctx context.Context, run *crawlRun, set string, firstSet bool) (int, error) {
	label := setLabel(set)
	pageParam := "page"
	pages := 0
	lastPage := e.cfg.MaxPages
	for page := 1; page <= lastPage; page++ {
		if ctx.Err() != nil {
			return pages, nil
		}
		body, err := e.fetchOnce(e.searchURL(set, page, pageParam))
		if err != nil {
			if firstSet && page == 1 {
				return pages, fmt.Errorf("fetch first list page: %w", err)
			}
			e.logger.Warn("list page fetch failed, ending set",
				zap.String("set", label), zap.Int("page", page), zap.Error(err))
			return pages, nil
		}
		pages++

		if page == 1 {
			pageParam = cardpage.PaginationParam(body)
			if total := cardpage.TotalCount(body); total > 0 {
				run.sess.AddTotal(int64(total))
			}
			if maxPage := cardpage.MaxPage(body, pageParam); maxPage > 0 {
				e.logger.Info("pagination bound detected",
					zap.String("set", label), zap.Int("max_page", maxPage))
				if maxPage < lastPage {
					lastPage = maxPage
				}
			}
		}

		items, err := cardpage.ParseList(body)
		if err != nil {
			e.logger.Warn("list page parse failed, ending set",
				zap.String("set", label), zap.Int("page", page), zap.Error(err))
			return pages, nil
		}

		fresh := 0
		for _, it := range items {
			if run.limitReached() {
				break
			}
			if !run.sess.MarkSeen(it.DetailID) {
				continue
			}
			fresh++
			run.enqueued.Add(1)
			e.enqueueDetail(run, set, it)
		}

		st := run.sess.Snapshot()
		e.emit(run.sess, progress.Event{
			Stage: progress.StagePage, SetCode: label, Page: page,
			Processed: st.Processed, Total: st.Total,
			Rate: st.Rate, Percent: st.Percent, ETA: st.ETA,
			Note: fmt.Sprintf("%d new cards", fresh),
		})

		if fresh == 0 || run.limitReached() {
			return pages, nil
		}
	}
	return pages, nil
}

func (e *Engine) enqueueDetail(run *crawlRun, set string, it cardpage.ListItem) {
	cctx := colly.NewContext()
	cctx.Put(ctxKeyCardNumber, it.CardNumber)
	cctx.Put(ctxKeyDetailID, strconv.FormatInt(it.DetailID, 10))
	cctx.Put(ctxKeySet, set)
	detailURL := e.cfg.BaseURL + "/cardlist/?id=" + strconv.FormatInt(it.DetailID, 10)
	if err := run.detail.Request(http.MethodGet, detailURL, nil, cctx, nil); err != nil {
		e.logger.Warn("enqueue detail fetch failed",
			zap.Int64("detail_id", it.DetailID), zap.Error(err))
		run.sess.AddSkipped()
	}
}

// newDetailCollector builds the async collector that fetches detail pages.
// Parallelism and per-request delay come straight from the config so a
// single-worker run with a polite delay is the default posture.
func (e *Engine) newDetailCollector(ctx context.Context, run *crawlRun) *colly.Collector {
	collector := colly.NewCollector(
		colly.UserAgent(e.cfg.UserAgent),
		colly.Async(true),
	)
	collector.AllowURLRevisit = false
	collector.SetRequestTimeout(e.cfg.Timeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: e.cfg.Workers,
		Delay:       e.cfg.Delay,
	}); err != nil {
		e.logger.Fatal("set collector limits", zap.Error(err))
	}

	collector.OnRequest(func(*colly.Request) {
		TotalRequests.Inc()
	})
	collector.OnResponse(func(r *colly.Response) {
		e.handleDetail(ctx, run, r)
	})
	collector.OnError(func(r *colly.Response, err error) {
		TotalRequestErrors.Inc()
		if r != nil && r.StatusCode == http.StatusTooManyRequests {
			TotalRateLimitHits.Inc()
		}
		run.sess.AddSkipped()
		fields := []zap.Field{zap.Error(err)}
		if r != nil && r.Request != nil {
			fields = append(fields, zap.String("url", r.Request.URL.String()))
		}
		if r != nil {
			fields = append(fields, zap.Int("status_code", r.StatusCode))
		}
		e.logger.Warn("detail fetch failed", fields...)
	})
	return collector
}

func (e *Engine) handleDetail(ctx context.Context, run *crawlRun, r *colly.Response) {
	hint := r.Ctx.Get(ctxKeyCardNumber)
	set := r.Ctx.Get(ctxKeySet)
	detailID, _ := strconv.ParseInt(r.Ctx.Get(ctxKeyDetailID), 10, 64)

	d, err := cardpage.ParseDetail(r.Body, hint)
	if err != nil {
		TotalParseErrors.Inc()
		run.sess.AddSkipped()
		e.logger.Debug("skipping unparseable detail page",
			zap.Int64("detail_id", detailID), zap.Error(err))
		e.emit(run.sess, progress.Event{
			Stage: progress.StageItemSkip, SetCode: setLabel(set),
			CardNumber: hint, Note: err.Error(),
		})
		return
	}

	imageURL := e.resolveImage(ctx, d.CardNumber, d.ImageURL)

	card := catalog.Card{
		CardNumber: d.CardNumber,
		SetCode:    setCodeOf(d.CardNumber),
		Rarity:     d.Rarity,
		Color:      d.Color,
		CardType:   d.CardType,
		Product:    d.Product,
		Name:       d.Name,
		ImageURL:   imageURL,
		DetailID:   detailID,
		DetailURL:  r.Request.URL.String(),
		Tags:       d.Tags,
		RawText:    d.RawText,
	}
	run.add(ctx, card)

	st := run.sess.Snapshot()
	e.emit(run.sess, progress.Event{
		Stage: progress.StageItem, SetCode: setLabel(set),
		CardNumber: d.CardNumber,
		Processed:  st.Processed, Total: st.Total,
		Rate: st.Rate, Percent: st.Percent, ETA: st.ETA,
	})
}

// resolveImage downloads the card image when a cache is configured and
// returns the URL to persist. Download failures are logged and ignored; the
// card record is saved either way.
func (e *Engine) resolveImage(ctx context.Context, cardNumber, imageURL string) string {
	if imageURL == "" {
		return ""
	}
	resolved := imageURL
	if strings.HasPrefix(imageURL, "/") {
		resolved = strings.TrimRight(e.cfg.BaseURL, "/") + imageURL
	}
	if e.images == nil {
		return resolved
	}
	if _, err := e.images.Ensure(ctx, cardNumber, resolved); err != nil {
		e.logger.Warn("image download failed",
			zap.String("card_number", cardNumber), zap.Error(err))
	}
	return resolved
}

// fetchOnce does a single synchronous GET through a dedicated collector,
// returning the body. List pages are always fetched sequentially.
func (e *Engine) fetchOnce(pageURL string) ([]byte, error) {
	collector := colly.NewCollector(colly.UserAgent(e.cfg.UserAgent))
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(e.cfg.Timeout)

	var body []byte
	var fetchErr error
	collector.OnRequest(func(*colly.Request) {
		TotalRequests.Inc()
	})
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		TotalRequestErrors.Inc()
		if r != nil && r.StatusCode == http.StatusTooManyRequests {
			TotalRateLimitHits.Inc()
		}
		fetchErr = err
	})
	if err := collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", pageURL)
	}
	return body, nil
}

func (e *Engine) searchURL(set string, page int, pageParam string) string {
	base := strings.TrimRight(e.cfg.BaseURL, "/") + "/cardlist/cardsearch/?view=text"
	if set != "" {
		base += "&expansion=" + url.QueryEscape(set)
	}
	return base + fmt.Sprintf("&%s=%d", pageParam, page)
}

func (e *Engine) startHeartbeat(ctx context.Context, sess *Session, label string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := sess.Snapshot()
				e.emit(sess, progress.Event{
					Stage: progress.StageHeartbeat, SetCode: label,
					Processed: st.Processed, Total: st.Total,
					Rate: st.Rate, Percent: st.Percent, ETA: st.ETA,
				})
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (e *Engine) emit(sess *Session, evt progress.Event) {
	evt.RunID = sess.ID
	evt.TS = time.Now().UTC()
	e.emitter.Emit(evt)
}

func (e *Engine) summary(sess *Session, sets []string, pages int) Summary {
	st := sess.Snapshot()
	labels := make([]string, len(sets))
	for i, s := range sets {
		labels[i] = setLabel(s)
	}
	return Summary{
		RunID:   sess.ID.String(),
		Sets:    labels,
		Pages:   pages,
		Saved:   st.Processed,
		Skipped: st.Skipped,
		Elapsed: st.Elapsed,
	}
}

// crawlRun holds the per-run mutable pieces shared between the pagination
// loop and the detail-collector callbacks.
type crawlRun struct {
	engine   *Engine
	sess     *Session
	detail   *colly.Collector
	enqueued atomic.Int64

	mu  sync.Mutex
	buf []catalog.Card
}

// add buffers a parsed card and flushes a batch once the commit threshold is
// reached. SaveBatch runs outside the buffer lock so parsing never stalls on
// the database.
func (r *crawlRun) add(ctx context.Context, c catalog.Card) {
	r.mu.Lock()
	r.buf = append(r.buf, c)
	full := len(r.buf) >= r.engine.cfg.CommitEvery
	r.mu.Unlock()
	if full {
		r.flush(ctx, false)
	}
}

func (r *crawlRun) flush(ctx context.Context, force bool) {
	r.mu.Lock()
	if !force && len(r.buf) < r.engine.cfg.CommitEvery {
		r.mu.Unlock()
		return
	}
	cards := r.buf
	r.buf = nil
	r.mu.Unlock()
	if len(cards) == 0 {
		return
	}

	saved, err := r.engine.store.SaveBatch(ctx, cards)
	if err != nil {
		r.engine.logger.Error("batch save failed", zap.Int("cards", len(cards)), zap.Error(err))
		for range cards {
			r.sess.AddSkipped()
		}
		return
	}
	TotalSaved.Add(float64(saved))
	for i := 0; i < saved; i++ {
		r.sess.AddProcessed()
	}
	for i := saved; i < len(cards); i++ {
		r.sess.AddSkipped()
	}
}

func (r *crawlRun) limitReached() bool {
	limit := r.engine.cfg.MaxCards
	return limit > 0 && r.enqueued.Load() >= int64(limit)
}

func setLabel(set string) string {
	if set == "" {
		return "ALL"
	}
	return strings.ToUpper(set)
}

func setCodeOf(cardNumber string) string {
	if i := strings.IndexByte(cardNumber, '-'); i > 0 {
		return cardNumber[:i]
	}
	return cardNumber
}
