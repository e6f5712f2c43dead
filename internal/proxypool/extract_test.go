package proxypool

import (
	"errors"
	"slices"
	"testing"
)

// TestExtractors covers the built-in extraction strategies.
func TestExtractors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		extractor Extractor
		body      string
		want      string
	}{
		{name: "text plain", extractor: TextExtractor{}, body: "1.2.3.4:8080", want: "1.2.3.4:8080"},
		{name: "text trims whitespace", extractor: TextExtractor{}, body: "\t1.2.3.4:8080\r\n", want: "1.2.3.4:8080"},
		{name: "text empty", extractor: TextExtractor{}, body: "   ", want: ""},
		{name: "json default field", extractor: JSONExtractor{}, body: `{"proxy":"1.2.3.4:8080"}`, want: "1.2.3.4:8080"},
		{name: "json custom field", extractor: JSONExtractor{Field: "addr"}, body: `{"addr":" 5.6.7.8:80 "}`, want: "5.6.7.8:80"},
		{name: "json missing field", extractor: JSONExtractor{}, body: `{"ip":"1.2.3.4"}`, want: ""},
		{name: "json non-string field", extractor: JSONExtractor{}, body: `{"proxy":8080}`, want: ""},
		{name: "json array body", extractor: JSONExtractor{}, body: `["1.2.3.4:8080"]`, want: ""},
		{name: "json invalid body", extractor: JSONExtractor{}, body: `1.2.3.4:8080`, want: ""},
		{name: "func adapter", extractor: ExtractorFunc(func(b string) string { return b + ":1" }), body: "host", want: "host:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.extractor.Extract(tt.body); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestExtractorRegistry covers lookup and registration by name.
// It is not parallel because it mutates the package registry.
func TestExtractorRegistry(t *testing.T) {
	t.Run("built-ins are registered", func(t *testing.T) {
		names := Extractors()
		for _, want := range []string{ExtractorJSON, ExtractorText} {
			if !slices.Contains(names, want) {
				t.Errorf("expected %q in %v", want, names)
			}
		}
	})

	t.Run("unknown name is a config error", func(t *testing.T) {
		_, err := LookupExtractor("xml")

		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || !errors.Is(err, ErrUnknownExtractor) {
			t.Errorf("expected ConfigError wrapping ErrUnknownExtractor, got %v", err)
		}
	})

	t.Run("registered extractor is found", func(t *testing.T) {
		RegisterExtractor("upper-test", ExtractorFunc(func(string) string { return "A:1" }))

		e, err := LookupExtractor("upper-test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := e.Extract("ignored"); got != "A:1" {
			t.Errorf("expected A:1, got %q", got)
		}
	})

	t.Run("registering without an extractor panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		RegisterExtractor("nil-test", nil)
	})
}
