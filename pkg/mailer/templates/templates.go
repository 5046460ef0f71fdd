package templates

import (
	"bytes"
	"embed"
	"fmt"
	htmpl "html/template"
	"strings"
	texttpl "text/template"
)

//go:embed *.tmpl
var FS embed.FS

const VerifyEmail = "verify_email"

// VerifyEmailData feeds the verify_email templates.
type VerifyEmailData struct {
	AppName string
	Email   string
	Link    string
}

// ToMap is the form carried in EmailJob.Data.
func (d VerifyEmailData) ToMap() map[string]any {
	return map[string]any{"AppName": d.AppName, "Email": d.Email, "Link": d.Link}
}

func baseFuncs() map[string]any {
	return map[string]any{
		"default": func(fallback, value any) any {
			if s, ok := value.(string); ok {
				if strings.TrimSpace(s) == "" {
					return fallback
				}
				return s
			}
			if value == nil {
				return fallback
			}
			return value
		},
	}
}

var (
	htmlFuncMap = htmpl.FuncMap(baseFuncs())
	textFuncMap = texttpl.FuncMap(baseFuncs())
)

// renderFile loads and renders a single template file from the embedded FS.
func renderFile(filename string, isHTML bool, data any) (string, error) {
	var (
		buf bytes.Buffer
		err error
	)
	if isHTML {
		tpl, e := htmpl.New(filename).Funcs(htmlFuncMap).ParseFS(FS, filename)
		if e != nil {
			return "", fmt.Errorf("parse html %q: %w", filename, e)
		}
		err = tpl.Execute(&buf, data)
	} else {
		tpl, e := texttpl.New(filename).Funcs(textFuncMap).ParseFS(FS, filename)
		if e != nil {
			return "", fmt.Errorf("parse text %q: %w", filename, e)
		}
		err = tpl.Execute(&buf, data)
	}
	if err != nil {
		return "", fmt.Errorf("exec %q: %w", filename, err)
	}
	return buf.String(), nil
}

// Render renders <name>.text.tmpl and <name>.html.tmpl.
func Render(name string, data any) (text string, html string, err error) {
	if text, err = renderFile(name+".text.tmpl", false, data); err != nil {
		return "", "", err
	}
	if html, err = renderFile(name+".html.tmpl", true, data); err != nil {
		return "", "", err
	}
	return text, html, nil
}
