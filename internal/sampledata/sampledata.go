// Package sampledata flattens XML, JSON and YAML example records into the
// string map handed to rules as data.
package sampledata

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a supported sample data encoding.
type Format string

const (
	XML  Format = "xml"
	JSON Format = "json"
	YAML Format = "yaml"
)

// ErrUnsupported is returned for content that is none of the known formats.
var ErrUnsupported = errors.New("unsupported sample data format")

// Detect guesses the format from the file extension, then from the content.
func Detect(filename string, content []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xml", ".thml":
		return XML, nil
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	}

	trimmed := bytes.TrimSpace(content)
	switch {
	case len(trimmed) == 0:
		return "", fmt.Errorf("%w: empty content", ErrUnsupported)
	case trimmed[0] == '<':
		return XML, nil
	case trimmed[0] == '{' || trimmed[0] == '[':
		return JSON, nil
	default:
		return YAML, nil
	}
}

// ParseFile detects the format of content and flattens it.
func ParseFile(filename string, content []byte) (map[string]string, error) {
	format, err := Detect(filename, content)
	if err != nil {
		return nil, err
	}
	return Parse(content, format)
}

// Parse flattens content. Nested keys are joined with dots and list items
// are addressed by index. XML leaf elements are also reachable by their
// bare name, first occurrence wins.
func Parse(content []byte, format Format) (map[string]string, error) {
	switch format {
	case XML:
		return parseXML(content)
	case JSON:
		var v any
		dec := json.NewDecoder(bytes.NewReader(content))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("invalid JSON sample data: %w", err)
		}
		return flatten(v), nil
	case YAML:
		var v any
		if err := yaml.Unmarshal(content, &v); err != nil {
			return nil, fmt.Errorf("invalid YAML sample data: %w", err)
		}
		return flatten(v), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
}

func flatten(v any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", v)
	return out
}

func flattenInto(out map[string]string, prefix string, v any) {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			flattenInto(out, join(prefix, k), child)
		}
	case map[any]any:
		for k, child := range x {
			flattenInto(out, join(prefix, fmt.Sprint(k)), child)
		}
	case []any:
		for i, child := range x {
			flattenInto(out, join(prefix, strconv.Itoa(i)), child)
		}
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	default:
		if prefix != "" {
			out[prefix] = fmt.Sprint(x)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// parseXML records the text of every leaf element under its dotted path
// (root excluded) and its bare name. Attributes become name@attr.
func parseXML(content []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	type frame struct {
		name     string
		path     string
		text     strings.Builder
		children int
	}

	var (
		stack []*frame
		paths = make(map[string]string)
		bare  = make(map[string]string)
		seen  = make(map[string]int)
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid XML sample data: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			path := ""
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children++
				path = join(parent.path, name)
				// repeated siblings get an index suffix
				if n := seen[path]; n > 0 {
					seen[path] = n + 1
					path = path + "." + strconv.Itoa(n)
				} else {
					seen[path] = 1
				}
			}
			for _, a := range t.Attr {
				key := name + "@" + a.Name.Local
				if path != "" {
					paths[path+"@"+a.Name.Local] = a.Value
				}
				if _, ok := bare[key]; !ok {
					bare[key] = a.Value
				}
			}
			stack = append(stack, &frame{name: name, path: path})
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.children > 0 || f.path == "" {
				continue
			}
			text := strings.TrimSpace(f.text.String())
			paths[f.path] = text
			if _, ok := bare[f.name]; !ok {
				bare[f.name] = text
			}
		}
	}

	for k, v := range bare {
		if _, ok := paths[k]; !ok {
			paths[k] = v
		}
	}
	return paths, nil
}

// Keys returns the keys of data, sorted.
func Keys(data map[string]string) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
