package indexing

import "context"

// ParsedSymbol is one entity a SymbolParser reports back for a file.
// Kinds outside objects.SymbolKind pass through unchanged, per §4.4
// step 3's "Kinds beyond {function, class, method, variable, interface,
// module} are passed through as-is".
type ParsedSymbol struct {
	Name          string
	Kind          string
	StartLine     int
	EndLine       int
	Signature     string
	Documentation string
}

// SymbolParser is the external collaborator invoked at §4.4 step 3:
// given a file's bytes and its detected language, it returns the
// symbols found inside. The pipeline depends only on this interface,
// never on a concrete parser, so additional language backends can be
// added without touching pipeline logic.
type SymbolParser interface {
	// Supports reports whether this parser can extract symbols for
	// language. The pipeline falls back to chunk-only indexing (no
	// symbols) for files whose language isn't supported.
	Supports(language string) bool
	Parse(ctx context.Context, content []byte, language string) ([]ParsedSymbol, error)
}

// ParserRegistry dispatches to the first registered SymbolParser that
// supports a given language.
type ParserRegistry struct {
	parsers []SymbolParser
}

// NewParserRegistry builds a registry trying each parser in order.
func NewParserRegistry(parsers ...SymbolParser) *ParserRegistry {
	return &ParserRegistry{parsers: parsers}
}

func (r *ParserRegistry) Supports(language string) bool {
	for _, p := range r.parsers {
		if p.Supports(language) {
			return true
		}
	}
	return false
}

func (r *ParserRegistry) Parse(ctx context.Context, content []byte, language string) ([]ParsedSymbol, error) {
	for _, p := range r.parsers {
		if p.Supports(language) {
			return p.Parse(ctx, content, language)
		}
	}
	return nil, nil
}
