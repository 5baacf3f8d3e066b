// Package command turns free-text reminder commands into structured
// location commands.
package command

import (
	"regexp"
	"strings"
	"sync"

	"github.com/hrygo/geominder/location"
)

// Trigger phrases that announce a location condition, longest first so the
// alternation prefers "when i get to" over "when i get".
var triggerPhrases = []string{
	"when i arrive at",
	"when i get to",
	"when i am near",
	"when i'm near",
	"when i am at",
	"when i'm at",
	"when i reach",
	"when i get",
	"arrive at",
	"near the",
	"at the",
}

var (
	placeArticles    = `(?:(?:the|my)\s+)?`
	categoryArticles = `(?:(?:a|an|any|the|some)\s+)?`

	boilerplatePrefix = regexp.MustCompile(`(?i)^(?:please\s+)?(?:remind\s+me\s+to|remind\s+me|remember\s+to|don't\s+forget\s+to|do\s+not\s+forget\s+to)(?:\s+|$)`)
	edgePunctuation   = " \t,.;:!?-"
)

// variant is one extraction strategy: a compiled pattern plus the function
// that builds a command from its submatches. Variants are tried in order.
type variant struct {
	name    string
	pattern *regexp.Regexp
	extract func(submatch string) (location.ParsedLocationCommand, bool)
}

// Interpreter detects location intent in free text.
// It is safe for concurrent use.
type Interpreter struct {
	catalog  *location.Catalog
	trigger  *regexp.Regexp
	mu       sync.RWMutex
	variants []variant
}

// NewInterpreter creates an interpreter over catalog. A nil catalog uses the
// embedded default.
func NewInterpreter(catalog *location.Catalog) *Interpreter {
	if catalog == nil {
		catalog = location.DefaultCatalog()
	}
	i := &Interpreter{
		catalog: catalog,
		trigger: regexp.MustCompile(`(?i)\b(?:` + triggerAlternation() + `)\b`),
	}
	i.variants = i.buildVariants(nil)
	return i
}

// SetPlaceNames installs the user's saved place names so the named-place
// strategy recognizes them alongside the built-in keywords.
func (i *Interpreter) SetPlaceNames(names []string) {
	variants := i.buildVariants(names)

	i.mu.Lock()
	i.variants = variants
	i.mu.Unlock()
}

// IsLocationCommand reports whether text contains a location trigger phrase.
func (i *Interpreter) IsLocationCommand(text string) bool {
	return i.trigger.MatchString(normalize(text))
}

// Parse extracts a location command from text. It returns false when no
// trigger phrase is present, when nothing resolvable follows it, or when the
// remaining message is empty.
func (i *Interpreter) Parse(text string) (*location.ParsedLocationCommand, bool) {
	normalized := normalize(text)
	if normalized == "" || !i.trigger.MatchString(normalized) {
		return nil, false
	}

	i.mu.RLock()
	variants := i.variants
	i.mu.RUnlock()

	for _, v := range variants {
		if v.pattern == nil {
			continue
		}
		loc := v.pattern.FindStringSubmatchIndex(normalized)
		if loc == nil {
			continue
		}
		cmd, ok := v.extract(normalized[loc[2]:loc[3]])
		if !ok {
			continue
		}
		message := extractMessage(normalized, loc[0], loc[1])
		if message == "" {
			return nil, false
		}
		cmd.Message = message
		return &cmd, true
	}
	return nil, false
}

func (i *Interpreter) buildVariants(savedNames []string) []variant {
	// canonical maps the lowercased keyword to the name reported back.
	canonical := make(map[string]string)
	for _, kw := range i.catalog.PlaceKeywords() {
		canonical[kw] = kw
	}
	for _, name := range savedNames {
		name = strings.Join(strings.Fields(name), " ")
		if name == "" {
			continue
		}
		canonical[strings.ToLower(name)] = name
	}
	placeKeys := make([]string, 0, len(canonical))
	for k := range canonical {
		placeKeys = append(placeKeys, k)
	}

	categoryIndex := i.catalog.KeywordIndex()

	return []variant{
		{
			name:    "named_place",
			pattern: compileStrategy(placeArticles, placeKeys),
			extract: func(submatch string) (location.ParsedLocationCommand, bool) {
				name, ok := canonical[strings.ToLower(submatch)]
				if !ok {
					return location.ParsedLocationCommand{}, false
				}
				return location.ParsedLocationCommand{
					LocationType: location.SpecificPlace,
					PlaceName:    name,
				}, true
			},
		},
		{
			name:    "generic_category",
			pattern: compileStrategy(categoryArticles, i.catalog.CategoryKeywords()),
			extract: func(submatch string) (location.ParsedLocationCommand, bool) {
				category, ok := categoryIndex[strings.ToLower(submatch)]
				if !ok {
					return location.ParsedLocationCommand{}, false
				}
				return location.ParsedLocationCommand{
					LocationType:  location.GenericCategory,
					PlaceCategory: category,
				}, true
			},
		},
	}
}

// compileStrategy builds `trigger [article] (keyword)` with one capture group.
// It returns nil when there is nothing to match.
func compileStrategy(articles string, keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		return nil
	}
	location.SortLongestFirst(keywords)
	return regexp.MustCompile(`(?i)\b(?:` + triggerAlternation() + `)\s+` + articles + `(` + phraseAlternation(keywords) + `)\b`)
}

func triggerAlternation() string {
	return phraseAlternation(triggerPhrases)
}

func phraseAlternation(phrases []string) string {
	parts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		words := strings.Fields(p)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		parts = append(parts, strings.Join(words, `\s+`))
	}
	return strings.Join(parts, "|")
}

// normalize collapses whitespace and folds typographic apostrophes.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "’", "'")
	return strings.Join(strings.Fields(text), " ")
}

// extractMessage removes text[start:end] and strips command boilerplate.
func extractMessage(text string, start, end int) string {
	rest := strings.Join(strings.Fields(text[:start]+" "+text[end:]), " ")
	rest = strings.Trim(rest, edgePunctuation)
	rest = boilerplatePrefix.ReplaceAllString(rest, "")
	return strings.Trim(rest, edgePunctuation)
}
