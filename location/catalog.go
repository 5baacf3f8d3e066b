package location

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Tag is a key=value pair understood by the open-data nearby search.
type Tag struct {
	Key   string
	Value string
}

func (t Tag) String() string {
	return t.Key + "=" + t.Value
}

// CategorySpec describes how one category is recognized and searched.
type CategorySpec struct {
	Category PlaceCategory
	Keywords []string
	Tags     []Tag
}

// Catalog is the place taxonomy shared by the interpreter and the resolver.
type Catalog struct {
	specs  map[PlaceCategory]CategorySpec
	order  []PlaceCategory
	places []string
}

type catalogFile struct {
	Categories []struct {
		Category string   `yaml:"category"`
		Keywords []string `yaml:"keywords"`
		Tags     []string `yaml:"tags"`
	} `yaml:"categories"`
	Places []string `yaml:"places"`
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded catalog. It panics if the embedded
// document is malformed, which is a build defect.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(defaultCatalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal catalog")
	}

	c := &Catalog{specs: make(map[PlaceCategory]CategorySpec)}
	for _, entry := range file.Categories {
		category := PlaceCategory(strings.ToUpper(strings.TrimSpace(entry.Category)))
		if !category.Valid() {
			return nil, errors.Errorf("unknown category %q in catalog", entry.Category)
		}
		spec := CategorySpec{Category: category}
		for _, kw := range entry.Keywords {
			kw = strings.ToLower(strings.Join(strings.Fields(kw), " "))
			if kw != "" {
				spec.Keywords = append(spec.Keywords, kw)
			}
		}
		for _, raw := range entry.Tags {
			key, value, ok := strings.Cut(raw, "=")
			if !ok || key == "" || value == "" {
				return nil, errors.Errorf("malformed tag %q for %s", raw, category)
			}
			spec.Tags = append(spec.Tags, Tag{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
		}
		if _, dup := c.specs[category]; dup {
			return nil, errors.Errorf("duplicate category %s in catalog", category)
		}
		c.specs[category] = spec
		c.order = append(c.order, category)
	}
	for _, p := range file.Places {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.places = append(c.places, p)
		}
	}
	return c, nil
}

// Tags returns the nearby-search tags for category; nil if it has none.
func (c *Catalog) Tags(category PlaceCategory) []Tag {
	return c.specs[category].Tags
}

// PlaceKeywords returns the built-in specific-place keywords.
func (c *Catalog) PlaceKeywords() []string {
	return append([]string(nil), c.places...)
}

// KeywordIndex maps every category keyword to its category.
func (c *Catalog) KeywordIndex() map[string]PlaceCategory {
	index := make(map[string]PlaceCategory)
	for _, category := range c.order {
		for _, kw := range c.specs[category].Keywords {
			if _, taken := index[kw]; !taken {
				index[kw] = category
			}
		}
	}
	return index
}

// CategoryKeywords returns all category keywords, longest first.
func (c *Catalog) CategoryKeywords() []string {
	index := c.KeywordIndex()
	keywords := make([]string, 0, len(index))
	for kw := range index {
		keywords = append(keywords, kw)
	}
	SortLongestFirst(keywords)
	return keywords
}

// SortLongestFirst orders phrases so that alternations prefer longer matches.
func SortLongestFirst(phrases []string) {
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})
}
