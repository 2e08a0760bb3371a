package render

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"
)

// DefaultTemplate prints a definition the way the command line tool always has.
const DefaultTemplate = "Definition: {{.Text}}\n"

// Data is the value a template executes against.
type Data struct {
	// Text is the generated tokens joined with single spaces.
	Text string
	// Tokens is the generated sequence, without sentinels.
	Tokens []string
	// Index is the position of the definition within a batch, starting at 1.
	Index int
	// Model is the name of the model that produced the definition, if known.
	Model string
}

// NewData builds the template data for one generated sequence.
func NewData(tokens []string) Data {
	return Data{
		Text:   strings.Join(tokens, " "),
		Tokens: tokens,
		Index:  1,
	}
}

// Renderer formats generated definitions through a text/template.
// All methods are concurrent-safe.
type Renderer struct {
	logger *slog.Logger
	tmpl   *template.Template
	source string
	mu     sync.RWMutex
}

// NewRenderer parses text as the output template. An empty text selects
// DefaultTemplate.
func NewRenderer(text string) (*Renderer, error) {
	r := &Renderer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := r.SetTemplate(text); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRendererFromFile reads the output template from path.
func NewRendererFromFile(path string) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return NewRenderer(string(data))
}

// SetLogger sets the logger for the renderer. A nil logger is ignored.
// By default, all logs are discarded.
func (r *Renderer) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger != nil {
		r.logger = logger
	}
}

// SetTemplate replaces the output template. The previous template stays in
// place if text does not parse.
func (r *Renderer) SetTemplate(text string) error {
	if text == "" {
		text = DefaultTemplate
	}
	t, err := template.New("definition").Funcs(funcMap()).Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse output template: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tmpl = t
	r.source = text
	r.logger.Debug("Output template loaded", slog.Int("bytes", len(text)))
	return nil
}

// Template returns the source of the current template.
func (r *Renderer) Template() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// Render writes one definition built from tokens to w.
func (r *Renderer) Render(w io.Writer, tokens []string) error {
	return r.RenderData(w, NewData(tokens))
}

// RenderData executes the template against data.
func (r *Renderer) RenderData(w io.Writer, data Data) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render definition: %w", err)
	}
	return nil
}

// RenderAll writes every definition in defs, numbering them from 1.
func (r *Renderer) RenderAll(w io.Writer, model string, defs [][]string) error {
	for i, tokens := range defs {
		data := NewData(tokens)
		data.Index = i + 1
		data.Model = model
		if err := r.RenderData(w, data); err != nil {
			return err
		}
	}
	return nil
}

// String renders tokens and returns the result.
func (r *Renderer) String(tokens []string) (string, error) {
	var sb strings.Builder
	if err := r.Render(&sb, tokens); err != nil {
		return "", err
	}
	return sb.String(), nil
}
