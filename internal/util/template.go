package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(fallback, v any) any {
		if v == nil || v == "" {
			return fallback
		}
		return v
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []any) string {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep)
	},
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
	// percent formats a ratio such as a confidence: 0.853 -> "85.3%".
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}

// compiled caches parsed templates by source text. Instructions are rendered
// once per task with the same few sources.
var compiled sync.Map // string -> *template.Template

// RenderTemplate renders text as a text/template against state. Missing keys
// render as zero values. Text without template markers is returned unchanged.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func parse(text string) (*template.Template, error) {
	if t, ok := compiled.Load(text); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("prompt").Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	actual, _ := compiled.LoadOrStore(text, t)
	return actual.(*template.Template), nil
}
