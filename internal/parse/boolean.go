package parse

import (
	"strings"

	"github.com/JonMunkholm/mlready/internal/table"
)

// BooleanParser matches cells against explicit true/false token lists,
// case-insensitively. A match is fully unambiguous, so confidence is 1.0.
func BooleanParser() Parser {
	return Parser{
		Kind:  KindBoolean,
		Parse: parseBoolean,
		Fit:   fitBoolean,
	}
}

func fitBoolean(_ []table.Cell, cfg Config) (Params, bool) {
	if len(cfg.TrueTokens) == 0 && len(cfg.FalseTokens) == 0 {
		return Params{}, false
	}
	return Params{
		TrueTokens:  cloneStrings(cfg.TrueTokens),
		FalseTokens: cloneStrings(cfg.FalseTokens),
	}, true
}

func parseBoolean(c table.Cell, p Params) Result {
	s := table.CleanCell(c.String())

	for _, tok := range p.TrueTokens {
		if strings.EqualFold(s, tok) {
			return ok(table.BoolValue(true), 1.0)
		}
	}
	for _, tok := range p.FalseTokens {
		if strings.EqualFold(s, tok) {
			return ok(table.BoolValue(false), 1.0)
		}
	}
	return fail(ReasonUnrecognizedToken)
}
