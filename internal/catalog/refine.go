package catalog

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RefineProgress is reported periodically during a refine pass.
type RefineProgress struct {
	Seen    int
	Updated int
	Total   int
}

const refineReportEvery = 500

// RefineTexts re-runs the text normalizer over every stored source text and
// rewrites only the rows whose canonical form changed. Because the
// normalizer is idempotent this is a no-op on an already-refined catalog.
// Updates are applied in batched transactions so an interruption loses at
// most one batch.
func (s *Store) RefineTexts(ctx context.Context, normalizeFn func(string) string, batchSize int, onProgress func(RefineProgress)) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM source_text`); err != nil {
		return 0, fmt.Errorf("count source texts: %w", err)
	}

	type row struct {
		PrintID int64  `db:"print_id"`
		RawText string `db:"raw_text"`
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT print_id, COALESCE(raw_text,'') AS raw_text FROM source_text`); err != nil {
		return 0, fmt.Errorf("load source texts: %w", err)
	}

	type update struct {
		printID int64
		text    string
	}
	var pending []update
	seen, updated := 0, 0

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
			for _, u := range pending {
				if _, err := tx.ExecContext(ctx, `
                    UPDATE source_text
                    SET raw_text=?, effect_text=?, updated_at=?
                    WHERE print_id=?`,
					u.text, u.text, nowISO(), u.printID); err != nil {
					return fmt.Errorf("update source text %d: %w", u.printID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		pending = pending[:0]
		return nil
	}

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		seen++
		cleaned := normalizeFn(r.RawText)
		if cleaned != r.RawText {
			pending = append(pending, update{printID: r.PrintID, text: cleaned})
			updated++
			if len(pending) >= batchSize {
				if err := flush(); err != nil {
					return updated, err
				}
			}
		}
		if onProgress != nil && (seen%refineReportEvery == 0 || seen == total) {
			onProgress(RefineProgress{Seen: seen, Updated: updated, Total: total})
		}
	}
	if err := flush(); err != nil {
		return updated, err
	}
	return updated, nil
}
