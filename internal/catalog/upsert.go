package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Card is one fully parsed card ready for persistence: print fields, the
// normalized source text, and the tag snapshot.
type Card struct {
	CardNumber string
	SetCode    string
	Rarity     string
	Color      string
	CardType   string
	Product    string
	Name       string
	ImageURL   string
	DetailID   int64
	DetailURL  string
	Tags       []string
	RawText    string
}

// UpsertPrint inserts or refreshes the print row keyed on card_number and
// returns its stable id. Re-scraping never creates a duplicate row.
func UpsertPrint(ctx context.Context, ext sqlx.ExtContext, c Card) (int64, error) {
	cardNumber := strings.TrimSpace(c.CardNumber)
	if cardNumber == "" {
		return 0, fmt.Errorf("upsert print: empty card number")
	}
	_, err := ext.ExecContext(ctx, `
        INSERT INTO prints(card_number,set_code,rarity,color,card_type,product,name,image_url,image_hash,detail_id,detail_url,updated_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(card_number) DO UPDATE SET
          set_code=excluded.set_code,
          rarity=excluded.rarity,
          color=excluded.color,
          card_type=excluded.card_type,
          product=excluded.product,
          name=excluded.name,
          image_url=excluded.image_url,
          image_hash=excluded.image_hash,
          detail_id=excluded.detail_id,
          detail_url=excluded.detail_url,
          updated_at=excluded.updated_at`,
		cardNumber, c.SetCode, c.Rarity, c.Color, c.CardType, c.Product,
		c.Name, c.ImageURL, hashText(c.ImageURL), c.DetailID, c.DetailURL, nowISO(),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert print %s: %w", cardNumber, err)
	}

	var id int64
	if err := sqlx.GetContext(ctx, ext, &id,
		`SELECT print_id FROM prints WHERE card_number=?`, cardNumber); err != nil {
		return 0, fmt.Errorf("resolve print id %s: %w", cardNumber, err)
	}
	return id, nil
}

// NormalizeTag is the stored projection: leading '#' stripped, whitespace
// removed, lower-cased.
func NormalizeTag(tag string) string {
	t := strings.TrimSpace(tag)
	t = strings.TrimPrefix(t, "#")
	t = strings.Join(strings.Fields(t), "")
	return strings.ToLower(t)
}

// ReplaceTags replaces the print's tag associations with a full snapshot of
// the given tags. Tag vocabulary rows are upserted, never deleted.
func ReplaceTags(ctx context.Context, ext sqlx.ExtContext, printID int64, tags []string) error {
	if _, err := ext.ExecContext(ctx,
		`DELETE FROM print_tags WHERE print_id=?`, printID); err != nil {
		return fmt.Errorf("clear print tags %d: %w", printID, err)
	}
	for _, tag := range tags {
		if _, err := ext.ExecContext(ctx, `
            INSERT INTO tags(tag, normalized) VALUES(?, ?)
            ON CONFLICT(tag) DO UPDATE SET normalized=excluded.normalized`,
			tag, NormalizeTag(tag)); err != nil {
			return fmt.Errorf("upsert tag %q: %w", tag, err)
		}
		var tagID int64
		if err := sqlx.GetContext(ctx, ext, &tagID,
			`SELECT tag_id FROM tags WHERE tag=?`, tag); err != nil {
			return fmt.Errorf("resolve tag id %q: %w", tag, err)
		}
		if _, err := ext.ExecContext(ctx,
			`INSERT OR IGNORE INTO print_tags(print_id, tag_id) VALUES(?, ?)`,
			printID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", tag, err)
		}
	}
	return nil
}

// UpsertSourceText writes the normalized source-language text for a print.
// The effect_text copy is kept identical to raw_text; a computed
// interpretation layer could diverge from it later.
func UpsertSourceText(ctx context.Context, ext sqlx.ExtContext, printID int64, name, rawText string) error {
	_, err := ext.ExecContext(ctx, `
        INSERT INTO source_text(print_id,name,effect_text,raw_text,updated_at)
        VALUES(?,?,?,?,?)
        ON CONFLICT(print_id) DO UPDATE SET
          name=excluded.name,
          effect_text=excluded.effect_text,
          raw_text=excluded.raw_text,
          updated_at=excluded.updated_at`,
		printID, name, rawText, rawText, nowISO())
	if err != nil {
		return fmt.Errorf("upsert source text %d: %w", printID, err)
	}
	return nil
}

// UpsertTranslatedText writes community translation content for a print. The
// version increments only when the name or effect actually changes value,
// not on every touch.
func UpsertTranslatedText(ctx context.Context, ext sqlx.ExtContext, printID int64, name, effect, memo, source string) error {
	var existing struct {
		Name    string `db:"name"`
		Effect  string `db:"effect_text"`
		Version int64  `db:"version"`
	}
	version := int64(1)
	err := sqlx.GetContext(ctx, ext, &existing, `
        SELECT COALESCE(name,'') AS name,
               COALESCE(effect_text,'') AS effect_text,
               COALESCE(version,1) AS version
        FROM translated_text WHERE print_id=?`, printID)
	if err == nil {
		version = existing.Version
		if existing.Name != name || existing.Effect != effect {
			version++
		}
	}

	if _, err := ext.ExecContext(ctx, `
        INSERT INTO translated_text(print_id,name,effect_text,memo,source,version,updated_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(print_id) DO UPDATE SET
          name=excluded.name,
          effect_text=excluded.effect_text,
          memo=excluded.memo,
          source=excluded.source,
          version=excluded.version,
          updated_at=excluded.updated_at`,
		printID, name, effect, memo, source, version, nowISO()); err != nil {
		return fmt.Errorf("upsert translated text %d: %w", printID, err)
	}
	return nil
}

// TranslatedVersion reports the current version for a print, 0 when absent.
func (s *Store) TranslatedVersion(ctx context.Context, printID int64) (int64, error) {
	var v int64
	err := s.db.GetContext(ctx, &v,
		`SELECT version FROM translated_text WHERE print_id=?`, printID)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// PrintIDByCardNumber resolves a card number (case-insensitive) to its print
// id; 0 when absent.
func (s *Store) PrintIDByCardNumber(ctx context.Context, cardNumber string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT print_id FROM prints WHERE UPPER(card_number)=UPPER(?)`,
		strings.TrimSpace(cardNumber))
	if err != nil {
		return 0, err
	}
	return id, nil
}

// saveCardTx writes one card's print+text+tags inside tx as a unit.
func saveCardTx(ctx context.Context, tx *sqlx.Tx, c Card) (int64, error) {
	id, err := UpsertPrint(ctx, tx, c)
	if err != nil {
		return 0, err
	}
	if err := UpsertSourceText(ctx, tx, id, c.Name, c.RawText); err != nil {
		return 0, err
	}
	if err := ReplaceTags(ctx, tx, id, c.Tags); err != nil {
		return 0, err
	}
	return id, nil
}

// SaveCard persists one card atomically in its own transaction.
func (s *Store) SaveCard(ctx context.Context, c Card) (int64, error) {
	var id int64
	err := RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var inner error
		id, inner = saveCardTx(ctx, tx, c)
		return inner
	})
	return id, err
}

// SaveBatch persists a batch of cards in a single transaction, one SAVEPOINT
// per card: a failing card rolls back alone and is skipped, the rest of the
// batch still commits. Returns the number of cards saved.
func (s *Store) SaveBatch(ctx context.Context, cards []Card) (int, error) {
	saved := 0
	err := RunInTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for i, c := range cards {
			sp := fmt.Sprintf("card_%d", i)
			if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
				return fmt.Errorf("savepoint: %w", err)
			}
			if _, err := saveCardTx(ctx, tx, c); err != nil {
				s.logger.Warn("card save failed, skipping",
					zap.String("card_number", c.CardNumber), zap.Error(err))
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+sp); rbErr != nil {
					return fmt.Errorf("rollback to savepoint: %w", rbErr)
				}
			} else {
				saved++
			}
			if _, err := tx.ExecContext(ctx, "RELEASE "+sp); err != nil {
				return fmt.Errorf("release savepoint: %w", err)
			}
		}
		return nil
	})
	return saved, err
}
