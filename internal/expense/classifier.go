package expense

import (
	"strings"

	"github.com/dwizi/wabot/internal/textnorm"
)

// Overrides resolves a description to a learned category name.
type Overrides interface {
	Lookup(description string) (string, bool)
}

type Source string

const (
	SourceOverride Source = "override"
	SourceKeyword  Source = "keyword"
	SourceDefault  Source = "default"
)

type Classification struct {
	Category Category
	Source   Source
}

// Confident is false when nothing matched and the default was used.
func (c Classification) Confident() bool {
	return c.Source != SourceDefault
}

type Classifier struct {
	categories []Category
	overrides  Overrides
}

func NewClassifier(overrides Overrides) *Classifier {
	return &Classifier{
		categories: Categories(),
		overrides:  overrides,
	}
}

func (c *Classifier) Classify(description, hint string) Classification {
	if c.overrides != nil {
		if name, ok := c.overrides.Lookup(description); ok {
			if category, found := LookupCategory(name); found {
				return Classification{Category: category, Source: SourceOverride}
			}
			return Classification{Category: Category{Name: strings.TrimSpace(name), Emoji: "🏷️"}, Source: SourceOverride}
		}
	}
	joined := textnorm.Fold(description + " " + hint)
	for _, category := range c.categories {
		for _, keyword := range category.Keywords {
			if strings.Contains(joined, keyword) {
				return Classification{Category: category, Source: SourceKeyword}
			}
		}
	}
	return Classification{Category: DefaultCategory(), Source: SourceDefault}
}
