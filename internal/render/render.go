package render

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/valyala/bytebufferpool"
)

//go:embed templates/*.html templates/mail/*.html
var embedFS embed.FS

var (
	embedTemplate *template.Template
	templateDir   string
	globalVars    map[string]interface{}
)

// Initialize loads the embedded templates. When tmplDir is set, templates
// found there take precedence over the embedded copies.
func Initialize(gVars map[string]interface{}, tmplDir string) error {
	globalVars = gVars
	templateDir = ""
	if tmplDir != "" {
		info, err := os.Stat(tmplDir)
		if err != nil {
			return fmt.Errorf("template directory does not exist: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("template path is not a directory: %s", tmplDir)
		}
		templateDir = tmplDir
	}

	t, err := parseEmbedded()
	if err != nil {
		return fmt.Errorf("failed to parse embedded templates: %w", err)
	}
	embedTemplate = t
	return nil
}

// parseEmbedded names every template by its path below templates/, for
// example "mail/reconnect-calendar.html".
func parseEmbedded() (*template.Template, error) {
	root := template.New("")
	err := fs.WalkDir(embedFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".html") {
			return err
		}
		content, err := embedFS.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = root.New(strings.TrimPrefix(path, "templates/")).Parse(string(content))
		return err
	})
	return root, err
}

// ViewsFS exposes the embedded page templates to fiber's view engine.
func ViewsFS() fs.FS {
	sub, err := fs.Sub(embedFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

func mergeVars(vars map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(globalVars)+len(vars))
	maps.Copy(merged, globalVars)
	maps.Copy(merged, vars)
	return merged
}

func renderFromDisk(buf *bytebufferpool.ByteBuffer, name string, vars map[string]interface{}) bool {
	filePath := filepath.Join(templateDir, name)
	contents, err := os.ReadFile(filePath)
	if err == nil {
		var t *template.Template
		if t, err = template.New(name).Parse(string(contents)); err == nil {
			if err = t.Execute(buf, vars); err == nil {
				return true
			}
		}
	}
	buf.Reset()
	slog.Warn("Render template failed, falling back to embedded", "path", filePath, "error", err)
	return false
}

func RenderHTML(templateName string, vars map[string]interface{}) (string, error) {
	if embedTemplate == nil {
		return "", fmt.Errorf("render: templates not initialized")
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if !strings.HasSuffix(templateName, ".html") {
		templateName += ".html"
	}
	merged := mergeVars(vars)
	if templateDir != "" && renderFromDisk(buf, templateName, merged) {
		return buf.String(), nil
	}
	if err := embedTemplate.ExecuteTemplate(buf, templateName, merged); err != nil {
		return "", err
	}
	return buf.String(), nil
}
