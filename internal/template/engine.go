package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders configuration files as Go text templates with the sprig
// function library.
//
// Missing keys of string maps such as Env render as the empty string, like
// an unset shell variable, so `{{ .Env.X | default "y" }}` works. Any other
// undefined reference renders as "<no value>" and fails the render.
type Engine struct {
	funcs template.FuncMap
}

// New creates a new template engine
func New() *Engine {
	return &Engine{funcs: sprig.TxtFuncMap()}
}

// RenderError reports a template that failed to parse or execute.
type RenderError struct {
	Name string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Name, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Render parses text as a template named name and executes it against data.
func (e *Engine) Render(name, text string, data map[string]interface{}) (string, error) {
	tmpl, err := template.New(name).
		Funcs(e.funcs).
		Option("missingkey=zero").
		Parse(text)
	if err != nil {
		return "", &RenderError{Name: name, Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &RenderError{Name: name, Err: err}
	}

	out := buf.String()
	for i, line := range strings.Split(out, "\n") {
		if strings.Contains(line, noValue) {
			return "", &RenderError{Name: name, Err: fmt.Errorf("line %d references an undefined value: %q", i+1, strings.TrimSpace(line))}
		}
	}
	return out, nil
}

// noValue is what text/template prints for a missing interface value.
const noValue = "<no value>"
