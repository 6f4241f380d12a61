// Package cardpage contains the pure HTML parsers for the source site: the
// detail-page parser, the list-page item extractor, and the best-effort
// pagination heuristics. Nothing in this package performs I/O.
package cardpage

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/SmallTyrant/hocg-catalog/internal/normalize"
)

// CardNumberRe matches canonical card numbers such as hBP04-002 or hSD05-009.
var CardNumberRe = regexp.MustCompile(`\b[hH][A-Za-z]{1,5}\d{2}-\d{3}\b`)

// detailIDRe pulls the numeric detail id out of list-page anchors.
var detailIDRe = regexp.MustCompile(`/cardlist/\?id=(\d+)`)

// expansionRe extracts set codes referenced by search filter links.
var expansionRe = regexp.MustCompile(`expansion=([A-Za-z0-9]+)`)

// totalCountRe is the text fallback for the declared result count.
var totalCountRe = regexp.MustCompile(`検索結果\s*(\d+)\s*件`)

// ErrNotDetailPage marks pages with no resolvable card number. Such pages
// (navigation, menus) share markup with real detail pages and must be
// skipped, not stored.
var ErrNotDetailPage = errors.New("cardpage: no valid card number on page")

// Detail is the structured result of parsing one detail page.
type Detail struct {
	CardNumber string
	Name       string
	Rarity     string
	Color      string
	CardType   string
	Product    string
	Tags       []string
	ImageURL   string
	RawText    string
}

// ListItem is one candidate card discovered on a list page.
type ListItem struct {
	DetailID   int64
	CardNumber string
}

const (
	labelCardNumber = "カードナンバー"
	labelCardName   = "カード名"
	labelRarity     = "レアリティ"
	labelColor      = "色"
	labelCardType   = "カードタイプ"
	labelProduct    = "収録商品"

	cardImageDir = "/wp-content/images/cardlist/"
)

// ParseDetail extracts the card record from detail-page markup. The card
// number is resolved from the labeled field first, then from the first
// pattern match anywhere in the page text, then from fallbackNumber (the
// number seen on the list page). ErrNotDetailPage is returned when all three
// fail.
func ParseDetail(html []byte, fallbackNumber string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Detail{}, err
	}

	rawFull := detailText(doc)
	normText := normalize.Text(rawFull)

	cardNo := ""
	if v := fieldByLabel(rawFull, normText, labelCardNumber); v != "" {
		if m := CardNumberRe.FindString(v); m != "" {
			cardNo = m
		}
	}
	if cardNo == "" {
		cardNo = CardNumberRe.FindString(rawFull)
	}
	if cardNo == "" {
		cardNo = CardNumberRe.FindString(fallbackNumber)
	}
	if cardNo == "" {
		return Detail{}, ErrNotDetailPage
	}

	name := fieldByLabel(rawFull, normText, labelCardName)
	if name == "" {
		name = titleName(doc)
	}
	if strings.Contains(strings.ToUpper(name), "CARDLIST") {
		// Navigation pages carry the site-wide "CARDLIST" title; a card is
		// never named that.
		name = ""
	}

	var tags []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		t := collapseSpace(a.Text())
		if strings.HasPrefix(t, "#") && len([]rune(t)) >= 2 {
			tags = append(tags, t)
		}
	})

	imageURL := ""
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if strings.Contains(src, cardImageDir) {
			imageURL = src
			return false
		}
		return true
	})

	return Detail{
		CardNumber: cardNo,
		Name:       name,
		Rarity:     fieldByLabel(rawFull, normText, labelRarity),
		Color:      fieldByLabel(rawFull, normText, labelColor),
		CardType:   fieldByLabel(rawFull, normText, labelCardType),
		Product:    fieldByLabel(rawFull, normText, labelProduct),
		Tags:       tags,
		ImageURL:   imageURL,
		RawText:    normText,
	}, nil
}

// ParseList extracts (detail id, card number) pairs from a list page.
// Anchors without a parseable card number are silently dropped.
func ParseList(html []byte) ([]ListItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var items []ListItem
	doc.Find("a[href*='cardlist/?id=']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := detailIDRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return
		}
		no := CardNumberRe.FindString(collapseSpace(a.Text()))
		if no == "" {
			return
		}
		items = append(items, ListItem{DetailID: id, CardNumber: no})
	})
	return items, nil
}

// ExpansionCodes returns the set codes referenced anywhere in the markup.
func ExpansionCodes(html []byte) []string {
	seen := map[string]bool{}
	var codes []string
	for _, m := range expansionRe.FindAllSubmatch(html, -1) {
		code := string(m[1])
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// PaginationParam detects the pagination query-parameter name by scanning
// outgoing links. The observed markup always uses "page", which doubles as
// the fallback.
func PaginationParam(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "page"
	}
	param := "page"
	doc.Find("a[href*='page=']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "page=") {
			param = "page"
			return false
		}
		return true
	})
	return param
}

// TotalCount reads the declared result count; 0 means unknown. Absence is
// non-fatal, the crawler simply paginates until a page yields nothing new.
func TotalCount(html []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0
	}
	if num := doc.Find(".cardlist-Result_Target_Num .num").First(); num.Length() > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(num.Text())); err == nil {
			return n
		}
	}
	if m := totalCountRe.FindStringSubmatch(doc.Text()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// MaxPage returns the highest page number referenced by pagination links;
// 0 means unknown.
func MaxPage(html []byte, pageParam string) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0
	}
	re := regexp.MustCompile(`[?&]` + regexp.QuoteMeta(pageParam) + `=(\d+)`)
	maxPage := 0
	doc.Find("a[href*='" + pageParam + "=']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := re.FindStringSubmatch(href)
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}

// detailText prefers the card detail container to avoid nav/menu noise.
func detailText(doc *goquery.Document) string {
	root := doc.Find(".cardlist-Detail").First()
	if root.Length() == 0 {
		return blockText(doc.Selection)
	}
	return blockText(root)
}

// blockText renders a selection as newline-separated trimmed text, one line
// per leaf text node, mirroring how the original raw text was captured.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					b.WriteString(t)
					b.WriteString("\n")
				}
				return
			}
			walk(c)
		})
	}
	walk(sel)
	return strings.TrimRight(b.String(), "\n")
}

// titleName strips site branding off the page title.
func titleName(doc *goquery.Document) string {
	title := collapseSpace(doc.Find("title").First().Text())
	if title == "" {
		return ""
	}
	if idx := strings.Index(title, "|"); idx >= 0 {
		title = title[:idx]
	}
	return strings.TrimSpace(title)
}

// fieldByLabel finds a labeled field value. Same-line "label：value" markup
// in the raw text wins; otherwise the normalizer's merged "label value" line
// is consulted.
func fieldByLabel(raw, normText, label string) string {
	sameLine := regexp.MustCompile(regexp.QuoteMeta(label) + `\s*[：:]\s*(.+)`)
	for _, line := range strings.Split(raw, "\n") {
		if m := sameLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range strings.Split(normText, "\n") {
		if rest, ok := strings.CutPrefix(line, label+" "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
