// Package search answers free-text card queries against a catalog whose
// underlying schema has evolved over time. The engine introspects the live
// database once, resolves a schema variant, and builds alias- and
// normalization-aware queries for it.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Mode selects between substring and equality matching.
type Mode string

const (
	// ModePartial matches substrings of every compared column.
	ModePartial Mode = "partial"
	// ModeExact matches whole values only, still case/punctuation
	// insensitive. It disambiguates "this exact tag" from "this exact tag
	// as a substring of something else".
	ModeExact Mode = "exact"
)

// Variant is the closed set of supported tag-storage layouts.
type Variant int

const (
	// VariantTagFree has no usable tag tables; card number/name only.
	VariantTagFree Variant = iota
	// VariantLegacy has the single bilingual tags table.
	VariantLegacy
	// VariantSplit has per-language tags_ja/tags_ko tables sharing tag ids.
	VariantSplit
)

func (v Variant) String() string {
	switch v {
	case VariantSplit:
		return "split"
	case VariantLegacy:
		return "legacy"
	default:
		return "tag-free"
	}
}

// Suggestion is one search result row.
type Suggestion struct {
	PrintID        int64  `db:"print_id" json:"print_id"`
	CardNumber     string `db:"card_number" json:"card_number"`
	Name           string `db:"name" json:"name"`
	TranslatedName string `db:"translated_name" json:"translated_name"`
}

// layout is the resolved shape of the connected database.
type layout struct {
	variant       Variant
	legacyJoinKey string // "tag" or "tag_id"
	nameCol       string // prints.name or legacy prints.name_ja
	translatedTbl string // translated_text, legacy card_texts_ko, or ""
}

// Engine builds and executes suggest queries. It is safe for concurrent use;
// the schema layout is resolved once per Engine and cached until
// Invalidate is called.
type Engine struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu       sync.Mutex
	resolved bool
	layout   layout
}

// New binds an Engine to a live catalog handle.
func New(db *sqlx.DB, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, logger: logger}
}

// Invalidate drops the cached schema layout. Call it after any operation
// that may have changed the schema (e.g. a fresh re-crawl or migration).
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.resolved = false
	e.mu.Unlock()
}

// Suggest returns catalog entries matching query, ordered by card number
// ascending. limit <= 0 means unbounded.
func (e *Engine) Suggest(ctx context.Context, query string, mode Mode, limit int) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	lay, err := e.resolveLayout(ctx)
	if err != nil {
		return nil, err
	}

	terms := expandTerms(query)
	sql, args := buildSuggestQuery(lay, terms, mode, limit)

	var out []Suggestion
	if err := e.db.SelectContext(ctx, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("suggest %q: %w", query, err)
	}
	return out, nil
}

// resolveLayout introspects the schema once and caches the result.
func (e *Engine) resolveLayout(ctx context.Context) (layout, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved {
		return e.layout, nil
	}

	lay, err := introspect(ctx, e.db)
	if err != nil {
		return layout{}, err
	}
	e.layout = lay
	e.resolved = true
	e.logger.Debug("resolved catalog schema",
		zap.String("variant", lay.variant.String()),
		zap.String("name_col", lay.nameCol),
		zap.String("translated_table", lay.translatedTbl))
	return lay, nil
}

func introspect(ctx context.Context, db *sqlx.DB) (layout, error) {
	tables, err := tableSet(ctx, db)
	if err != nil {
		return layout{}, err
	}
	if !tables["prints"] {
		return layout{}, fmt.Errorf("introspect schema: prints table missing")
	}

	lay := layout{variant: VariantTagFree, nameCol: "name"}

	printCols, err := columnSet(ctx, db, "prints")
	if err != nil {
		return layout{}, err
	}
	if !printCols["name"] && printCols["name_ja"] {
		lay.nameCol = "name_ja"
	}

	switch {
	case tables["translated_text"]:
		lay.translatedTbl = "translated_text"
	case tables["card_texts_ko"]:
		lay.translatedTbl = "card_texts_ko"
	}

	if !tables["print_tags"] {
		return lay, nil
	}
	ptCols, err := columnSet(ctx, db, "print_tags")
	if err != nil {
		return layout{}, err
	}

	if tables["tags_ja"] && ptCols["tag_id"] {
		lay.variant = VariantSplit
		return lay, nil
	}
	if tables["tags"] {
		tagCols, err := columnSet(ctx, db, "tags")
		if err != nil {
			return layout{}, err
		}
		switch {
		case ptCols["tag"] && tagCols["tag"]:
			lay.variant = VariantLegacy
			lay.legacyJoinKey = "tag"
		case ptCols["tag_id"] && tagCols["tag_id"]:
			lay.variant = VariantLegacy
			lay.legacyJoinKey = "tag_id"
		}
	}
	return lay, nil
}

func tableSet(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	var names []string
	if err := db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type='table'`); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func columnSet(ctx context.Context, db *sqlx.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	set := map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		set[name] = true
	}
	return set, rows.Err()
}

// buildSuggestQuery assembles the SQL for the resolved layout. Every term is
// matched against every available column twice: once raw (case-insensitive)
// and once through fuzznorm, so spacing/punctuation differences never hide a
// match.
func buildSuggestQuery(lay layout, terms []string, mode Mode, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT DISTINCT p.print_id, p.card_number, COALESCE(p.")
	b.WriteString(lay.nameCol)
	b.WriteString(",'') AS name, ")
	if lay.translatedTbl != "" {
		b.WriteString("COALESCE(ko.name,'') AS translated_name")
	} else {
		b.WriteString("'' AS translated_name")
	}
	b.WriteString("\nFROM prints p\n")
	if lay.translatedTbl != "" {
		fmt.Fprintf(&b, "LEFT JOIN %s ko ON ko.print_id = p.print_id\n", lay.translatedTbl)
	}

	cols := []string{"p.card_number", "p." + lay.nameCol}
	if lay.translatedTbl != "" {
		cols = append(cols, "ko.name", "ko.effect_text")
	}
	switch lay.variant {
	case VariantSplit:
		b.WriteString("LEFT JOIN print_tags pt ON pt.print_id = p.print_id\n")
		b.WriteString("LEFT JOIN tags_ja t ON t.tag_id = pt.tag_id\n")
		b.WriteString("LEFT JOIN tags_ko tk ON tk.tag_id = pt.tag_id\n")
		cols = append(cols, "t.tag", "t.normalized", "tk.tag", "tk.normalized")
	case VariantLegacy:
		b.WriteString("LEFT JOIN print_tags pt ON pt.print_id = p.print_id\n")
		fmt.Fprintf(&b, "LEFT JOIN tags t ON t.%s = pt.%s\n", lay.legacyJoinKey, lay.legacyJoinKey)
		cols = append(cols, "t.tag", "t.normalized")
	}

	var (
		clauses []string
		args    []any
	)
	for _, term := range terms {
		folded := Fold(term)
		for _, col := range cols {
			if mode == ModeExact {
				clauses = append(clauses, fmt.Sprintf("UPPER(%s) = UPPER(?)", col))
				args = append(args, term)
				if folded != "" {
					clauses = append(clauses, fmt.Sprintf("fuzznorm(%s) = ?", col))
					args = append(args, folded)
				}
				continue
			}
			clauses = append(clauses, fmt.Sprintf("UPPER(%s) LIKE UPPER(?)", col))
			args = append(args, "%"+term+"%")
			if folded != "" {
				clauses = append(clauses, fmt.Sprintf("fuzznorm(%s) LIKE ?", col))
				args = append(args, "%"+folded+"%")
			}
		}
	}

	b.WriteString("WHERE ")
	b.WriteString(strings.Join(clauses, "\n   OR "))
	b.WriteString("\nORDER BY p.card_number")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	return b.String(), args
}
