package termination

import (
	"strings"

	"github.com/comigor/roundtable/internal/config"
)

// Mode says how many phrases of a set must occur in a message.
type Mode string

const (
	MatchAny Mode = config.MatchAny
	MatchAll Mode = config.MatchAll
)

// PhraseSet is one named row of the rule table.
type PhraseSet struct {
	Name    string
	Mode    Mode
	Phrases []string
}

// Match is the single predicate used for every rule. Matching is a
// case-insensitive substring test. An empty set matches nothing.
func (p PhraseSet) Match(text string) bool {
	if len(p.Phrases) == 0 {
		return false
	}
	text = strings.ToLower(text)
	for _, phrase := range p.Phrases {
		found := strings.Contains(text, strings.ToLower(phrase))
		if p.Mode == MatchAll && !found {
			return false
		}
		if p.Mode != MatchAll && found {
			return true
		}
	}
	return p.Mode == MatchAll
}

// PhraseSetsFromConfig converts the configured rule table.
func PhraseSetsFromConfig(sets map[string]config.PhraseSetConfig) map[string]PhraseSet {
	out := make(map[string]PhraseSet, len(sets))
	for name, s := range sets {
		out[name] = PhraseSet{Name: name, Mode: Mode(s.Match), Phrases: s.Phrases}
	}
	return out
}
