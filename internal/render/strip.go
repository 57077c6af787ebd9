package render

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Strip removes the wrappers added by Editable and returns the markup with
// plain markers. All other bytes pass through untouched, so
// Strip(Editable(doc, ...)) == doc for markers outside raw-text elements.
func Strip(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))

	var (
		out bytes.Buffer
		// one entry per open span, true when it is a wrapper
		spans []bool
	)

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		// Raw is invalidated by TagName and TagAttr.
		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "span" {
				wrapper := hasAttr && isWrapper(z)
				spans = append(spans, wrapper)
				if wrapper {
					continue
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "span" && len(spans) > 0 {
				wrapper := spans[len(spans)-1]
				spans = spans[:len(spans)-1]
				if wrapper {
					continue
				}
			}
		}

		out.Write(raw)
	}

	return out.String()
}

func isWrapper(z *html.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "class" {
			for _, c := range strings.Fields(string(val)) {
				if c == WrapperClass {
					return true
				}
			}
		}
		if !more {
			return false
		}
	}
}
