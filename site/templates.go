package site

import (
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

//go:embed static/css/* static/js/*
var staticFS embed.FS

type templates struct {
	mu     sync.Mutex
	cached map[string]*template.Template
}

var instance = &templates{cached: make(map[string]*template.Template)}

func getTemplate(name string) (*template.Template, error) {
	instance.mu.Lock()
	defer instance.mu.Unlock()
	if v, ok := instance.cached[name]; ok {
		return v, nil
	}

	fname := fmt.Sprintf("templates/%s.tmpl", name)
	t, err := template.New(fmt.Sprintf("%s.tmpl", name)).ParseFS(templatesFS, fname)
	if err != nil {
		return nil, err
	}

	instance.cached[name] = t
	return t, nil
}
