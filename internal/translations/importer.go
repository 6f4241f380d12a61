// Package translations imports externally maintained card translations and
// writes them through the store's versioned upsert, so re-imports that change
// nothing never bump a translation's version.
package translations

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/catalog"
)

// Source is the default label recorded on rows written by this importer.
const Source = "csv"

// headerAliases maps the column names accepted in import files onto the
// canonical field keys.
var headerAliases = map[string]string{
	"card_number": "card_number",
	"cardnumber":  "card_number",
	"number":      "card_number",
	"name":        "name",
	"name_ko":     "name",
	"effect":      "effect",
	"effect_ko":   "effect",
	"text":        "effect",
	"memo":        "memo",
	"note":        "memo",
}

// Result summarizes one import run.
type Result struct {
	Imported int
	Skipped  int
}

// Importer reads translation CSV files into the catalog store.
type Importer struct {
	store  *catalog.Store
	logger *zap.Logger
	source string
}

// New wires an Importer that labels rows with the default Source.
func New(store *catalog.Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger, source: Source}
}

// WithSource overrides the source label recorded on imported rows.
func (im *Importer) WithSource(source string) *Importer {
	if source != "" {
		im.source = source
	}
	return im
}

// Import reads a header-mapped CSV stream and upserts each row's translation.
// Rows whose card number is unknown to the catalog are logged and skipped;
// they do not fail the import. When overwrite is false, rows for prints that
// already carry a translation are skipped as well.
func (im *Importer) Import(ctx context.Context, r io.Reader, overwrite bool) (Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := mapHeader(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import interrupted: %w", err)
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read csv row %d: %w", line+1, err)
		}
		line++

		row := fieldsOf(record, cols)
		cardNumber := strings.TrimSpace(row["card_number"])
		if cardNumber == "" {
			res.Skipped++
			continue
		}

		printID, err := im.store.PrintIDByCardNumber(ctx, cardNumber)
		if err != nil {
			im.logger.Warn("skipping unknown card number",
				zap.String("card_number", cardNumber), zap.Int("line", line))
			res.Skipped++
			continue
		}

		if !overwrite {
			version, err := im.store.TranslatedVersion(ctx, printID)
			if err != nil {
				return res, fmt.Errorf("check existing translation %s: %w", cardNumber, err)
			}
			if version > 0 {
				res.Skipped++
				continue
			}
		}

		err = catalog.UpsertTranslatedText(ctx, im.store.DB(), printID,
			row["name"], row["effect"], row["memo"], im.source)
		if err != nil {
			return res, fmt.Errorf("import translation %s: %w", cardNumber, err)
		}
		res.Imported++
	}

	im.logger.Info("translation import finished",
		zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
	return res, nil
}

func mapHeader(header []string) (map[int]string, error) {
	cols := make(map[int]string, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if canon, ok := headerAliases[key]; ok {
			cols[i] = canon
		}
	}
	for _, canon := range cols {
		if canon == "card_number" {
			return cols, nil
		}
	}
	return nil, fmt.Errorf("csv header has no card_number column")
}

func fieldsOf(record []string, cols map[int]string) map[string]string {
	row := make(map[string]string, len(cols))
	for i, canon := range cols {
		if i < len(record) {
			row[canon] = strings.TrimSpace(record[i])
		}
	}
	return row
}
