package proxypool

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Built-in extractor names.
const (
	// ExtractorText treats the body as a plain "host:port" line.
	ExtractorText = "text"

	// ExtractorJSON reads a string field from a JSON object body.
	ExtractorJSON = "json"

	// DefaultJSONField is the field read by the json extractor.
	DefaultJSONField = "proxy"
)

// Extractor turns a pool response body into a proxy address.
// An empty result means the body held no usable address.
type Extractor interface {
	Extract(body string) string
}

// ExtractorFunc adapts an ordinary function to the Extractor interface.
type ExtractorFunc func(body string) string

// Extract calls f(body).
func (f ExtractorFunc) Extract(body string) string {
	return f(body)
}

// TextExtractor returns the trimmed body.
type TextExtractor struct{}

// Extract implements Extractor.
func (TextExtractor) Extract(body string) string {
	return strings.TrimSpace(body)
}

// JSONExtractor reads Field from a JSON object.
// Bodies that are not objects, or whose field is missing or not a string,
// yield no address.
type JSONExtractor struct {
	Field string
}

// Extract implements Extractor.
func (e JSONExtractor) Extract(body string) string {
	field := e.Field
	if field == "" {
		field = DefaultJSONField
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return ""
	}
	v, ok := obj[field].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

var (
	extractorsMu sync.RWMutex
	extractors   = map[string]Extractor{
		ExtractorText: TextExtractor{},
		ExtractorJSON: JSONExtractor{Field: DefaultJSONField},
	}
)

// RegisterExtractor makes an extractor selectable by name from configuration.
// It is meant to be called during program initialisation; registering an
// existing name replaces it.
func RegisterExtractor(name string, e Extractor) {
	if name == "" || e == nil {
		panic("proxypool: RegisterExtractor needs a name and an extractor")
	}
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	extractors[name] = e
}

// LookupExtractor returns the extractor registered under name.
func LookupExtractor(name string) (Extractor, error) {
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()

	e, ok := extractors[name]
	if !ok {
		return nil, &ConfigError{
			Field: "proxy_pool.extractor",
			Err:   fmt.Errorf("%w: %q", ErrUnknownExtractor, name),
		}
	}
	return e, nil
}

// Extractors returns the registered extractor names in sorted order.
func Extractors() []string {
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()

	names := make([]string, 0, len(extractors))
	for name := range extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
