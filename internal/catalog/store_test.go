package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleCard() Card {
	return Card{
		CardNumber: "hBP04-002",
		SetCode:    "hBP04",
		Rarity:     "RR",
		Color:      "緑",
		CardType:   "ホロメン",
		Name:       "エリザベス・ローズ・ブラウダイア",
		ImageURL:   "/wp-content/images/cardlist/hBP04/hBP04-002_RR.png",
		DetailID:   77,
		DetailURL:  "https://example.com/cardlist/?id=77",
		Tags:       []string{"#Tag1", "#Tag2"},
		RawText:    "エリザベス・ローズ・ブラウダイア\nカードタイプ ホロメン",
	}
}

// TestOpenReappliesSchema confirms reopening an existing database is safe.
func TestOpenReappliesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

// TestSaveCardIdempotent verifies re-saving the same card keeps a single
// prints row with a stable id.
func TestSaveCardIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	id1, err := store.SaveCard(ctx, sampleCard())
	require.NoError(t, err)
	id2, err := store.SaveCard(ctx, sampleCard())
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var count int
	require.NoError(t, store.DB().Get(&count, `SELECT COUNT(*) FROM prints`))
	assert.Equal(t, 1, count)
}

// TestSaveCardUpdatesFields checks a re-scrape overwrites mutable print
// fields in place.
func TestSaveCardUpdatesFields(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.SaveCard(ctx, sampleCard())
	require.NoError(t, err)

	changed := sampleCard()
	changed.Rarity = "OSR"
	id, err := store.SaveCard(ctx, changed)
	require.NoError(t, err)

	var rarity string
	require.NoError(t, store.DB().Get(&rarity,
		`SELECT rarity FROM prints WHERE print_id=?`, id))
	assert.Equal(t, "OSR", rarity)
}

// TestReplaceTagsSnapshot verifies tag links are a full snapshot of the
// latest save while the tag vocabulary itself only grows.
func TestReplaceTagsSnapshot(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.SaveCard(ctx, sampleCard())
	require.NoError(t, err)

	changed := sampleCard()
	changed.Tags = []string{"#Tag2", "#Tag3"}
	_, err = store.SaveCard(ctx, changed)
	require.NoError(t, err)

	var linked []string
	require.NoError(t, store.DB().Select(&linked, `
        SELECT t.tag FROM print_tags pt
        JOIN tags t ON t.tag_id = pt.tag_id
        WHERE pt.print_id=? ORDER BY t.tag`, id))
	assert.Equal(t, []string{"#Tag2", "#Tag3"}, linked)

	var vocab int
	require.NoError(t, store.DB().Get(&vocab, `SELECT COUNT(*) FROM tags`))
	assert.Equal(t, 3, vocab)
}

// TestNormalizeTag pins the stored tag projection.
func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tag1", NormalizeTag("#Tag1"))
	assert.Equal(t, "動物耳", NormalizeTag(" #動物耳 "))
	assert.Equal(t, "twowords", NormalizeTag("#Two Words"))
}

// TestTranslatedVersionBumpsOnChangeOnly verifies the version counter is
// content-driven: identical rewrites never bump it.
func TestTranslatedVersionBumpsOnChangeOnly(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.SaveCard(ctx, sampleCard())
	require.NoError(t, err)

	require.NoError(t, UpsertTranslatedText(ctx, store.DB(), id, "엘리자베스", "효과", "", "csv"))
	v, err := store.TranslatedVersion(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	require.NoError(t, UpsertTranslatedText(ctx, store.DB(), id, "엘리자베스", "효과", "", "csv"))
	v, err = store.TranslatedVersion(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	require.NoError(t, UpsertTranslatedText(ctx, store.DB(), id, "엘리자베스", "새 효과", "", "csv"))
	v, err = store.TranslatedVersion(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

// TestPrintIDByCardNumberCaseInsensitive confirms lookups ignore case.
func TestPrintIDByCardNumberCaseInsensitive(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.SaveCard(ctx, sampleCard())
	require.NoError(t, err)

	got, err := store.PrintIDByCardNumber(ctx, "HBP04-002")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

// TestSaveBatchSkipsFailingCard verifies one bad card rolls back alone while
// the rest of the batch commits.
func TestSaveBatchSkipsFailingCard(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	good := sampleCard()
	bad := sampleCard()
	bad.CardNumber = "" // fails the upsert
	other := sampleCard()
	other.CardNumber = "hBP04-003"
	other.DetailID = 78

	saved, err := store.SaveBatch(ctx, []Card{good, bad, other})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	var count int
	require.NoError(t, store.DB().Get(&count, `SELECT COUNT(*) FROM prints`))
	assert.Equal(t, 2, count)
}

// TestRefineTexts verifies only changed rows are rewritten and a second pass
// with the same function is a no-op.
func TestRefineTexts(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	a := sampleCard()
	a.RawText = "  messy text  "
	b := sampleCard()
	b.CardNumber = "hBP04-003"
	b.DetailID = 78
	b.RawText = "clean"
	_, err := store.SaveBatch(ctx, []Card{a, b})
	require.NoError(t, err)

	normalizer := strings.TrimSpace
	updated, err := store.RefineTexts(ctx, normalizer, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	updated, err = store.RefineTexts(ctx, normalizer, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	var text string
	require.NoError(t, store.DB().Get(&text, `
        SELECT raw_text FROM source_text st
        JOIN prints p ON p.print_id = st.print_id
        WHERE p.card_number='hBP04-002'`))
	assert.Equal(t, "messy text", text)
}
