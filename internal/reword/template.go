package reword

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"toJSON": toJSON,
	"lower":  strings.ToLower,
	"upper":  strings.ToUpper,
}

// TextRenderer renders Go text/template sources.
type TextRenderer struct{}

// NewTextRenderer returns the default renderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

// Parse checks that source is a valid template.
func Parse(source string) (*template.Template, error) {
	tmpl, err := template.New("reword").Option("missingkey=error").Funcs(funcs).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}
	return tmpl, nil
}

// Render parses and executes source against ctx.
func (r *TextRenderer) Render(source string, ctx Context) (string, error) {
	tmpl, err := Parse(source)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx.Data()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplate, err)
	}

	return buf.String(), nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
