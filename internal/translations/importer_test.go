package translations

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SmallTyrant/hocg-catalog/internal/catalog"
)

func seededStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.SaveCard(context.Background(), catalog.Card{
		CardNumber: "hBP04-002",
		Name:       "エリザベス・ローズ・ブラウダイア",
		RawText:    "text",
	})
	require.NoError(t, err)
	return store
}

// TestImportHappyPath verifies header-mapped rows land as translations.
func TestImportHappyPath(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	imp := New(store, zap.NewNop())

	csv := "card_number,name_ko,effect_ko,memo\nhBP04-002,엘리자베스,효과 텍스트,비고\n"
	res, err := imp.Import(context.Background(), strings.NewReader(csv), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 0, res.Skipped)

	var name string
	require.NoError(t, store.DB().Get(&name, `
        SELECT tt.name FROM translated_text tt
        JOIN prints p ON p.print_id = tt.print_id
        WHERE p.card_number='hBP04-002'`))
	assert.Equal(t, "엘리자베스", name)
}

// TestImportSkipsUnknownCards confirms unknown card numbers are logged and
// skipped without failing the run.
func TestImportSkipsUnknownCards(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	imp := New(store, zap.NewNop())

	csv := "card_number,name\nhZZ99-999,유령\nhBP04-002,엘리자베스\n"
	res, err := imp.Import(context.Background(), strings.NewReader(csv), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped)
}

// TestImportOverwriteGuard verifies existing translations are preserved
// unless --overwrite semantics are requested, and that identical re-imports
// never bump the version.
func TestImportOverwriteGuard(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	imp := New(store, zap.NewNop())
	ctx := context.Background()

	first := "card_number,name\nhBP04-002,처음\n"
	_, err := imp.Import(ctx, strings.NewReader(first), false)
	require.NoError(t, err)

	// Without overwrite the second import is skipped entirely.
	second := "card_number,name\nhBP04-002,나중\n"
	res, err := imp.Import(ctx, strings.NewReader(second), false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	// With overwrite the row is replaced and the version bumps.
	res, err = imp.Import(ctx, strings.NewReader(second), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	id, err := store.PrintIDByCardNumber(ctx, "hBP04-002")
	require.NoError(t, err)
	v, err := store.TranslatedVersion(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)

	// Re-importing identical content with overwrite keeps the version.
	res, err = imp.Import(ctx, strings.NewReader(second), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	v, err = store.TranslatedVersion(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

// TestImportRejectsHeaderWithoutCardNumber fails fast on unusable files.
func TestImportRejectsHeaderWithoutCardNumber(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	imp := New(store, zap.NewNop())

	_, err := imp.Import(context.Background(), strings.NewReader("name,effect\nx,y\n"), false)
	assert.Error(t, err)
}
