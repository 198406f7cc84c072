// Package reword renders per-destination templates that replace the body
// of a relayed hook.
//
// A template sees three values:
//
//	.raw      the inbound body as text
//	.headers  the headers kept for the destination
//	.json     the parsed body, only when it was sent as application/json
//
// Referencing a value that does not exist is a render error.
package reword

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"mightyhooks/internal/hook"
	"mightyhooks/internal/route"
)

var (
	ErrBodyNotText = errors.New("body must be valid UTF-8 text")
	ErrDecodeBody  = errors.New("failed to decode JSON body")
	ErrTemplate    = errors.New("template error")
)

// View is the structured form of a body offered to templates.
type View interface {
	view()
}

// NoView is used when the body is not JSON.
type NoView struct{}

// JSONView carries the decoded JSON document.
type JSONView struct {
	Value any
}

func (NoView) view()   {}
func (JSONView) view() {}

// Context is the data a template is rendered against.
type Context struct {
	Raw        string
	Headers    map[string]string
	Structured View
}

// Data returns the template data map. The "json" key is only present for a
// JSONView so that templates using it fail on other bodies.
func (c Context) Data() map[string]any {
	data := map[string]any{
		"raw":     c.Raw,
		"headers": c.Headers,
	}
	if v, ok := c.Structured.(JSONView); ok {
		data["json"] = v.Value
	}
	return data
}

// Renderer renders a template source against a context.
type Renderer interface {
	Render(source string, ctx Context) (string, error)
}

// Engine rewords bodies. It performs no I/O and is safe for concurrent use
// when its Renderer is.
type Engine struct {
	renderer Renderer
}

// New creates an engine. A nil renderer selects the text/template renderer.
func New(renderer Renderer) *Engine {
	if renderer == nil {
		renderer = NewTextRenderer()
	}
	return &Engine{renderer: renderer}
}

// NewContext builds the template context for body and the destination's
// filtered headers.
func NewContext(body hook.Body, headers map[string]string) (Context, error) {
	if !utf8.Valid(body.Content) {
		return Context{}, ErrBodyNotText
	}

	ctx := Context{
		Raw:        string(body.Content),
		Headers:    headers,
		Structured: NoView{},
	}

	if body.IsJSON() {
		value, err := decodeJSON(body.Content)
		if err != nil {
			return Context{}, fmt.Errorf("%w: %v", ErrDecodeBody, err)
		}
		ctx.Structured = JSONView{Value: value}
	}

	return ctx, nil
}

// Reword renders rw against body and returns the replacement body. The
// input body is not modified.
func (e *Engine) Reword(rw route.Reword, body hook.Body, headers map[string]string) (hook.Body, error) {
	ctx, err := NewContext(body, headers)
	if err != nil {
		return hook.Body{}, err
	}

	rendered, err := e.renderer.Render(rw.Template, ctx)
	if err != nil {
		if errors.Is(err, ErrTemplate) {
			return hook.Body{}, err
		}
		return hook.Body{}, fmt.Errorf("%w: %v", ErrTemplate, err)
	}

	return hook.Body{
		Content:     []byte(rendered),
		ContentType: rw.ContentType,
	}, nil
}

// decodeJSON keeps numbers in their textual form so that re-emitting a
// value does not change its representation.
func decodeJSON(content []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level value")
	}
	return value, nil
}
