package dom

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html/atom"
)

// Category is the kind of a tracked node. Each category owns one ordered
// collection in a Registry. Values are part of the wire protocol.
type Category uint

const (
	TextInput Category = 0
	Link      Category = 1
)

// DefaultCategories are the categories a Registry tracks when none are given.
var DefaultCategories = []Category{TextInput, Link}

var categoryNames = map[Category]string{
	TextInput: "text_input",
	Link:      "link",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "category(" + strconv.FormatUint(uint64(c), 10) + ")"
}

// ParseCategory accepts a category name ("text_input", "link") or its
// decimal wire value.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for c, n := range categoryNames {
		if n == s {
			return c, nil
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("dom: parse category %q: %w", s, ErrUnknownCategory)
	}
	return Category(v), nil
}

// textInputTypes are the <input type> values that accept free text.
var textInputTypes = map[string]bool{
	"":         true,
	"text":     true,
	"search":   true,
	"email":    true,
	"url":      true,
	"tel":      true,
	"password": true,
}

// Classify decides which category, if any, an element belongs to from its
// tag name and the value of its type attribute. Links qualify only when
// they carry an href.
func Classify(tagName, inputType string, hasHref bool) (Category, bool) {
	switch atom.Lookup([]byte(strings.ToLower(tagName))) {
	case atom.Input:
		if textInputTypes[strings.ToLower(strings.TrimSpace(inputType))] {
			return TextInput, true
		}
	case atom.Textarea:
		return TextInput, true
	case atom.A:
		if hasHref {
			return Link, true
		}
	}
	return 0, false
}
