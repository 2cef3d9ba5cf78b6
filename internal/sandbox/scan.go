package sandbox

import (
	"regexp"
	"sync"
)

// scanner matches forbidden symbols in generated source before any
// execution. The match is textual: the deny-list is a backstop behind
// the allow-listed environment, so code that smuggles a denied name
// through string indexing is left to the environment to stop.
type scanner struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func newScanner(symbols []string) *scanner {
	s := &scanner{patterns: make(map[string]*regexp.Regexp, len(symbols))}
	for _, sym := range symbols {
		if sym == "" {
			continue
		}
		// Require a non-identifier boundary on both sides so "load"
		// does not match "payload" or "loadstring" does not match a
		// longer identifier. Dots inside the symbol are literal.
		s.patterns[sym] = regexp.MustCompile(`(?:^|[^\w.])` + regexp.QuoteMeta(sym) + `\b`)
	}
	return s
}

// scan returns the first forbidden symbol referenced by the source,
// or "" if none match. Symbols are checked in a stable order so the
// reported symbol is deterministic.
func (s *scanner) scan(source string, order []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range order {
		re, ok := s.patterns[sym]
		if !ok {
			continue
		}
		if re.MatchString(source) {
			return sym
		}
	}
	return ""
}
