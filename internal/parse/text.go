package parse

import "github.com/JonMunkholm/mlready/internal/table"

// TextParser is the catch-all. It always succeeds with confidence 0 and keeps
// the cell verbatim.
func TextParser() Parser {
	return Parser{
		Kind: KindText,
		Parse: func(c table.Cell, _ Params) Result {
			return ok(table.TextValue(c.String()), 0)
		},
	}
}
