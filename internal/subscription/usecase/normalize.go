package usecase

import "strings"

// Corporate suffixes stripped from the tail of a service name during
// normalization. Only trailing tokens are removed, so "Inc Magazine" keeps
// its name.
var corporateSuffixes = map[string]bool{
	"inc":         true,
	"llc":         true,
	"ltd":         true,
	"limited":     true,
	"corp":        true,
	"corporation": true,
	"co":          true,
	"company":     true,
	"gmbh":        true,
	"plc":         true,
	"sa":          true,
}

// NormalizeServiceName reduces a vendor/service name to its matching form:
// lowercase, trimmed, punctuation collapsed to spaces, trailing corporate
// suffixes removed, whitespace collapsed.
func NormalizeServiceName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for len(tokens) > 1 && corporateSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}

	return strings.Join(tokens, " ")
}
