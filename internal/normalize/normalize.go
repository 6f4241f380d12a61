// Package normalize turns raw scraped card-page text into a canonical,
// line-structured form. The transform is a pure function and idempotent:
// running it over its own output yields the same output, which lets a later
// batch refine pass re-run it over the whole catalog safely.
package normalize

import (
	"regexp"
	"strings"
)

// Section labels recognized on detail pages. Membership decides merging,
// removal, and where the title relocation stops scanning.
const (
	labelCardType    = "カードタイプ"
	labelRarity      = "レアリティ"
	labelColor       = "色"
	labelLife        = "LIFE"
	labelHP          = "HP"
	labelCardNumber  = "カードナンバー"
	labelTag         = "タグ"
	labelIllustrator = "イラストレーター名"
	labelProduct     = "収録商品"
)

// mergeLabels are spliced with the following value line ("<label> <value>").
var mergeLabels = stringSet(
	labelCardType, labelRarity, labelColor, labelLife, labelHP, labelCardNumber,
)

// removeLabels are dropped together with their single value line. The card
// number is removed because it is stored structurally on the print row; the
// product section has its own conditional handling below.
var removeLabels = stringSet(labelIllustrator, labelCardNumber)

// allLabels is the full recognized vocabulary; a line matching one of these
// is never treated as a value during merging.
var allLabels = stringSet(
	labelCardType, labelRarity, labelColor, labelLife, labelHP, labelCardNumber,
	labelTag, "推しスキル", "SP推しスキル", "Bloomレベル",
	"アーツ", "バトンタッチ", "エクストラ",
	labelIllustrator, "キーワード", labelProduct,
)

// noiseLines is site chrome that leaks into the detail container text.
var noiseLines = stringSet(
	"MENU", "CLOSE", "FOR BEGINNERS", "RULE/Q&A", "NEWS", "PRODUCT",
	"EVENT", "SHOP", "CARD LIST", "DECK RECIPE", "TOP",
	"CARDLIST", "カードリスト", "ーカードリストー",
)

// productSectionKeywords distinguish a real product-listing block from a nav
// link that happens to share the 収録商品 label text. The six-line lookahead
// is a known-fuzzy heuristic carried over from the site's observed markup.
var productSectionKeywords = []string{
	"Accessories", "Boosters", "発売日", "【使用可能カード】",
	"スタートデッキ", "ブースターパック", "エントリーカップ",
}

const productLookahead = 6

var sectionStartRe = regexp.MustCompile(
	`^(カードタイプ|レアリティ|色|LIFE|HP|推しスキル|SP推しスキル|Bloomレベル|アーツ|バトンタッチ|エクストラ|イラストレーター名|カードナンバー|キーワード)`,
)

var colonStripper = strings.NewReplacer("：", "", ":", "")

func stringSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// stripLabel removes colons so "カードタイプ：" and "カードタイプ" compare equal.
func stripLabel(line string) string {
	return strings.TrimSpace(colonStripper.Replace(line))
}

func isLabelLine(line string) bool {
	s := stripLabel(line)
	if allLabels[s] {
		return true
	}
	for lbl := range allLabels {
		if strings.HasPrefix(s, lbl+" ") {
			return true
		}
	}
	return false
}

// state of the line scanner.
type state int

const (
	// stateScanning dispatches on the current line's label.
	stateScanning state = iota
	// stateInTagBlock accumulates hashtag lines after a タグ label.
	stateInTagBlock
	// stateInRemovedSection swallows lines until the next section label.
	stateInRemovedSection
)

// Text normalizes raw detail-page text. If the result would be empty (every
// line was noise) the input is returned unchanged so nothing is lost.
func Text(text string) string {
	lines := splitTrimmed(text)
	lines = dropNoise(lines)
	lines = relocateTitle(lines)
	out := rewrite(lines)

	refined := strings.TrimSpace(strings.Join(out, "\n"))
	if refined == "" {
		return text
	}
	return refined
}

func splitTrimmed(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func dropNoise(lines []string) []string {
	out := lines[:0:0]
	for _, l := range lines {
		if noiseLines[stripLabel(l)] {
			continue
		}
		out = append(out, l)
	}
	return out
}

// relocateTitle moves the card's title line to the front. Pages often place
// the name after incidental chrome, so the nearest non-label, non-noise,
// non-hashtag line before the first section label is taken as the title and
// everything else before that label is dropped.
func relocateTitle(lines []string) []string {
	// Prefix-aware label detection here, so already-merged lines like
	// "カードタイプ ホロメン" anchor the scan instead of being mistaken for
	// a title on a second pass.
	firstLabel := -1
	for i, l := range lines {
		if isLabelLine(l) {
			firstLabel = i
			break
		}
	}
	if firstLabel <= 0 {
		return lines
	}

	title := ""
	for j := firstLabel - 1; j >= 0; j-- {
		cand := lines[j]
		if isLabelLine(cand) || noiseLines[stripLabel(cand)] || strings.HasPrefix(cand, "#") {
			continue
		}
		title = cand
		break
	}

	rest := lines[firstLabel:]
	if title == "" {
		return rest
	}
	return append([]string{title}, rest...)
}

// rewrite runs the merge/join/remove state machine over the cleaned lines.
func rewrite(lines []string) []string {
	var (
		out  []string
		st   = stateScanning
		tags []string
	)

	flushTags := func() {
		if len(tags) > 0 {
			out = append(out, labelTag+" "+strings.Join(tags, " "))
		} else {
			out = append(out, labelTag)
		}
		tags = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		label := stripLabel(line)

		switch st {
		case stateInTagBlock:
			if strings.HasPrefix(line, "#") {
				tags = append(tags, line)
				i++
				continue
			}
			flushTags()
			st = stateScanning
			// Re-dispatch the current line in the scanning state.

		case stateInRemovedSection:
			if !sectionStartRe.MatchString(label) {
				i++
				continue
			}
			st = stateScanning
		}

		switch {
		case removeLabels[label]:
			// Drop the label and its single value line, if any.
			i++
			if i < len(lines) && !allLabels[stripLabel(lines[i])] {
				i++
			}

		case label == labelTag:
			st = stateInTagBlock
			i++

		case mergeLabels[label] && i+1 < len(lines) && !isLabelLine(lines[i+1]):
			out = append(out, label+" "+lines[i+1])
			i += 2

		case mergeLabels[label]:
			// Value is absent on the page; the label stands alone.
			out = append(out, label)
			i++

		case label == labelProduct:
			if !isRealProductSection(lines, i) {
				// Nav/footer link sharing the label text; keep it.
				out = append(out, label)
				i++
				continue
			}
			st = stateInRemovedSection
			i++

		default:
			out = append(out, emitLine(line, label))
			i++
		}
	}

	if st == stateInTagBlock {
		flushTags()
	}
	return out
}

// isRealProductSection peeks at the lines following a 収録商品 label and
// reports whether they look like a product-listing block rather than an
// unrelated nav link of the same text.
func isRealProductSection(lines []string, i int) bool {
	end := min(i+1+productLookahead, len(lines))
	look := strings.Join(lines[i+1:end], " ")
	for _, kw := range productSectionKeywords {
		if strings.Contains(look, kw) {
			return true
		}
	}
	return false
}

// emitLine keeps the original line unless it is a recognized label, in which
// case the colon-stripped form is emitted.
func emitLine(line, label string) string {
	if label != line && allLabels[label] {
		return label
	}
	return line
}
