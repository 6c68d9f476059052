package templates

import (
	"bytes"
	"embed"
	"io/fs"
	"path"
	"strings"
	"sync"
	"text/template"

	"shopbot/pkg/errors"
)

//go:embed assets/**/*.tmpl
var embeddedFS embed.FS

// Template is a parsed message template
type Template struct {
	ID string

	parsed *template.Template
}

// Render executes the template with data. Surrounding whitespace is trimmed
// so template files may end with a newline.
func (t *Template) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render template %s", t.ID)
	}

	return strings.TrimSpace(buf.String()), nil
}

// Registry resolves parsed templates by ID ("shop/menu"). It is read-only
// once built.
type Registry struct {
	templates map[string]*Template
}

// NewRegistryFromFS parses every .tmpl file in filesystem
func NewRegistryFromFS(filesystem fs.FS) (*Registry, error) {
	r := &Registry{templates: map[string]*Template{}}

	err := fs.WalkDir(filesystem, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".tmpl" {
			return nil
		}

		content, err := fs.ReadFile(filesystem, p)
		if err != nil {
			return errors.Wrapf(err, "read template %s", p)
		}

		id := strings.TrimSuffix(p, ".tmpl")
		parsed, err := template.New(id).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return errors.Wrapf(err, "parse template %s", id)
		}
		r.templates[id] = &Template{ID: id, parsed: parsed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Get returns the process-wide registry over the embedded shop templates.
// Embedded templates are compiled into the binary, so a load failure is a
// programming error and panics.
func Get() *Registry {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embeddedFS, "assets")
		if err != nil {
			defaultErr = errors.Wrap(err, "prepare embedded templates")
			return
		}
		defaultRegistry, defaultErr = NewRegistryFromFS(sub)
	})

	if defaultErr != nil {
		panic(defaultErr)
	}

	return defaultRegistry
}

// GetTemplate retrieves a template by its ID
func (r *Registry) GetTemplate(id string) (*Template, error) {
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "template %s", id)
	}
	return tmpl, nil
}

// Render executes a template by ID
func (r *Registry) Render(id string, data any) (string, error) {
	tmpl, err := r.GetTemplate(id)
	if err != nil {
		return "", err
	}

	return tmpl.Render(data)
}
