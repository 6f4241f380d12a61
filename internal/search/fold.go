package search

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"unicode"

	"modernc.org/sqlite"
)

// Fold projects text into its match-insensitive form: lower-cased with all
// whitespace and punctuation removed. Queries and stored values differing
// only in spacing, case, or punctuation fold to the same string.
func Fold(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// fuzznorm is registered as a deterministic scalar SQL function so the same
// folding applies to compared columns inside queries.
func init() {
	err := sqlite.RegisterDeterministicScalarFunction(
		"fuzznorm", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case nil:
				return nil, nil
			case string:
				return Fold(v), nil
			case []byte:
				return Fold(string(v)), nil
			default:
				return Fold(fmt.Sprint(v)), nil
			}
		},
	)
	if err != nil {
		panic(fmt.Sprintf("register fuzznorm: %v", err))
	}
}
