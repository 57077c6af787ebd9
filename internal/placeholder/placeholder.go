// Package placeholder extracts /*Name*/ insertion markers from document text.
package placeholder

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// markerPattern matches "slash-star, one or more word characters, star-slash".
var markerPattern = regexp.MustCompile(`/\*(\w+)\*/`)

// Placeholder is a single insertion point discovered in a document.
type Placeholder struct {
	Name   string `json:"name"`
	Marker string `json:"marker"`
	Index  int    `json:"index"`
}

// Marker returns the literal marker text for a field name.
func Marker(name string) string {
	return "/*" + name + "*/"
}

// Scan returns the unique placeholders of text in first-occurrence order.
// Repeated markers are recorded once; malformed markers are ignored.
func Scan(text string) []Placeholder {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	result := make([]Placeholder, 0, len(matches))
	seen := make(map[string]bool, len(matches))

	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, Placeholder{
			Name:   name,
			Marker: m[0],
			Index:  len(result),
		})
	}

	return result
}

// Names returns the field names of placeholders, preserving order.
func Names(placeholders []Placeholder) []string {
	names := make([]string, len(placeholders))
	for i, p := range placeholders {
		names[i] = p.Name
	}
	return names
}

// Contains reports whether a placeholder with the given name exists.
func Contains(placeholders []Placeholder, name string) bool {
	for _, p := range placeholders {
		if p.Name == name {
			return true
		}
	}
	return false
}

var unsafeChars = regexp.MustCompile(`[^0-9A-Za-z_]`)

// SafeName maps an arbitrary field name onto identifier characters.
func SafeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// Surrounding returns the text within radius bytes of the first marker for
// name, cut on rune boundaries. It is empty when the marker is absent.
func Surrounding(text, name string, radius int) string {
	at := strings.Index(text, Marker(name))
	if at < 0 {
		return ""
	}

	start := max(at-radius, 0)
	for start < at && !utf8.RuneStart(text[start]) {
		start++
	}
	end := min(at+len(Marker(name))+radius, len(text))
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[start:end]
}
