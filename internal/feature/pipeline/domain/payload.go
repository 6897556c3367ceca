package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// PathSymbol is the payload field that drives all downstream keying.
const PathSymbol = "meta.symbol"

// RequiredFields lists the dotted paths every quote payload must carry.
// Everything else in the document is treated as opaque.
var RequiredFields = []string{PathSymbol}

// symbolPattern admits exchange tickers such as "NVDA", "BRK-B", "^GSPC" and "EURUSD=X".
// A slash would escape the per-symbol key namespace, so it is rejected.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,16}$`)

// NormalizeSymbol uppercases a ticker and rejects one that cannot be used as a key segment.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return sym, nil
}

// QuotePayload is one symbol's time series as returned by the market data source.
type QuotePayload struct {
	doc map[string]any
}

// ParseQuotePayload decodes raw text into a payload. Numbers are kept as
// json.Number so that re-encoding does not change their representation.
func ParseQuotePayload(raw []byte) (*QuotePayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrParse)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrParse)
	}
	return &QuotePayload{doc: doc}, nil
}

// Lookup walks a dotted path through nested objects.
func (p *QuotePayload) Lookup(path string) (any, bool) {
	var cur any = p.doc
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// String returns the non-empty string at path, or ErrSchema.
func (p *QuotePayload) String(path string) (string, error) {
	v, ok := p.Lookup(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSchema, path)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is not a non-empty string", ErrSchema, path)
	}
	return s, nil
}

// Validate checks every entry of RequiredFields.
func (p *QuotePayload) Validate() error {
	for _, f := range RequiredFields {
		if _, err := p.String(f); err != nil {
			return err
		}
	}
	return nil
}

// Symbol returns the normalized ticker from meta.symbol.
func (p *QuotePayload) Symbol() (string, error) {
	raw, err := p.String(PathSymbol)
	if err != nil {
		return "", err
	}
	sym, err := NormalizeSymbol(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return sym, nil
}

// Doc exposes the decoded document.
func (p *QuotePayload) Doc() map[string]any {
	return p.doc
}

// Encode serializes the payload canonically: object keys sorted, no HTML
// escaping, non-ASCII characters written as UTF-8.
func (p *QuotePayload) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p.doc); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
