package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CTAG07/defgen/pkg/markov"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	// DefaultMarker is the tag that opens a definition in Webster's 1913 text.
	DefaultMarker = "Defn:"
	// DefaultMaxTokens caps the length of a single definition. Zero keeps
	// every token.
	DefaultMaxTokens = 0
	// maxLineSize bounds a single line of input.
	maxLineSize = 1 << 20
)

// Option is a function that configures a Parser.
type Option func(*Parser)

// WithMarker sets the text that opens a definition.
// Default: "Defn:"
func WithMarker(marker string) Option {
	return func(p *Parser) {
		p.marker = marker
	}
}

// WithStopTokens truncates a definition at the first token equal to one of
// stops, for example "[Obs.]".
// Default: none
func WithStopTokens(stops ...string) Option {
	return func(p *Parser) {
		for _, s := range stops {
			p.stops[s] = struct{}{}
		}
	}
}

// WithSplitFunc sets the function used to split a line into tokens.
// Default: strings.Fields
func WithSplitFunc(split func(string) []string) Option {
	return func(p *Parser) {
		p.split = split
	}
}

// WithEncoding sets the character encoding of the input. A nil encoding
// reads the input as UTF-8.
// Default: ISO-8859-1
func WithEncoding(enc encoding.Encoding) Option {
	return func(p *Parser) {
		p.enc = enc
	}
}

// WithMaxTokens sets the maximum number of tokens kept per definition. Zero
// or less disables the limit.
// Default: 0 (no limit)
func WithMaxTokens(n int) Option {
	return func(p *Parser) {
		p.maxTokens = n
	}
}

// Encoding maps a configuration name to a text encoding. The empty string and
// "utf-8" return nil, meaning no decoding.
func Encoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	default:
		return nil, fmt.Errorf("unsupported corpus encoding %q", name)
	}
}

// Parser extracts definitions from flat dictionary text. A definition starts
// on a line containing the marker, takes the text after the marker, and
// continues over the following lines until a blank line, the next marker or
// the end of input. Lines outside definitions are ignored.
type Parser struct {
	scanner   *bufio.Scanner
	marker    string
	stops     map[string]struct{}
	split     func(string) []string
	enc       encoding.Encoding
	maxTokens int

	pending *string // marker line read while finishing the previous definition
	lines   int
	defs    int
	started bool
	src     io.Reader
}

// NewParser creates a Parser reading from r with default settings, which can
// be overridden by providing one or more Option functions.
func NewParser(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		marker:    DefaultMarker,
		stops:     make(map[string]struct{}),
		split:     strings.Fields,
		enc:       charmap.ISO8859_1,
		maxTokens: DefaultMaxTokens,
		src:       r,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) init() {
	p.started = true
	r := p.src
	if p.enc != nil {
		r = p.enc.NewDecoder().Reader(r)
	}
	p.scanner = bufio.NewScanner(r)
	p.scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
}

// Lines returns the number of lines read so far.
func (p *Parser) Lines() int { return p.lines }

// Definitions returns the number of definitions returned so far.
func (p *Parser) Definitions() int { return p.defs }

// Next returns the next definition from the stream. It returns io.EOF when
// the input is exhausted. A marker followed by no text yields an empty
// definition; the transition counter skips those.
func (p *Parser) Next() (markov.Definition, error) {
	if !p.started {
		p.init()
	}

	var def markov.Definition
	inDef := false

	for {
		var line string
		if p.pending != nil {
			line = *p.pending
			p.pending = nil
		} else {
			if !p.scanner.Scan() {
				if err := p.scanner.Err(); err != nil {
					return nil, fmt.Errorf("reading corpus at line %d: %w", p.lines, err)
				}
				if inDef {
					return p.finish(def), nil
				}
				return nil, io.EOF
			}
			p.lines++
			line = p.scanner.Text()
		}

		idx := strings.Index(line, p.marker)
		switch {
		case !inDef && idx < 0:
			continue
		case !inDef:
			inDef = true
			def = p.appendTokens(def, line[idx+len(p.marker):])
		case idx >= 0:
			p.pending = &line
			return p.finish(def), nil
		case strings.TrimSpace(line) == "":
			return p.finish(def), nil
		default:
			def = p.appendTokens(def, line)
		}
	}
}

func (p *Parser) appendTokens(def markov.Definition, text string) markov.Definition {
	for _, token := range p.split(text) {
		if token == markov.StartTokenText || token == markov.EndTokenText {
			continue
		}
		def = append(def, token)
	}
	return def
}

// finish applies stop tokens and the length cap to a completed definition.
func (p *Parser) finish(def markov.Definition) markov.Definition {
	if len(p.stops) > 0 {
		for i, token := range def {
			if _, stop := p.stops[token]; stop {
				def = def[:i]
				break
			}
		}
	}
	if p.maxTokens > 0 && len(def) > p.maxTokens {
		def = def[:p.maxTokens]
	}
	if def == nil {
		def = markov.Definition{}
	}
	p.defs++
	return def
}

// ParseAll reads every definition from r.
func ParseAll(r io.Reader, opts ...Option) ([]markov.Definition, error) {
	p := NewParser(r, opts...)
	var defs []markov.Definition
	for {
		def, err := p.Next()
		if errors.Is(err, io.EOF) {
			return defs, nil
		}
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
}

// ParseFile opens path and reads every definition from it.
func ParseFile(path string, opts ...Option) ([]markov.Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return ParseAll(f, opts...)
}
