// Package publish writes stored documents out as files: the markdown source,
// and optionally a standalone sanitized HTML page next to it.
package publish

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"mdpreview/internal/model"
	"mdpreview/internal/render"
)

type WriteOptions struct {
	Overwrite bool
	HTML      bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>body{max-width:46rem;margin:2rem auto;padding:0 1rem;font-family:system-ui,sans-serif;line-height:1.6}pre{overflow:auto;background:#f5f5f5;padding:.75rem}code{font-family:ui-monospace,monospace}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .5rem}blockquote{margin-left:0;padding-left:1rem;border-left:3px solid #ccc;color:#555}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderPage returns doc as a standalone HTML page.
func RenderPage(doc model.Document) ([]byte, error) {
	var buf bytes.Buffer
	err := pageTmpl.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: model.TitleFromFileName(doc.Title), Body: render.Template(doc.Content)})
	return buf.Bytes(), err
}

// WriteDocuments writes each document as <title>.md into toDir. Two documents
// with the same title in one batch get " (2)", " (3)" suffixes.
func WriteDocuments(docs []model.Document, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)
	if err := os.MkdirAll(toDir, 0o755); err != nil {
		return WriteResult{}, err
	}

	used := map[string]int{}
	var written []string
	for _, doc := range docs {
		base := baseName(doc)
		used[strings.ToLower(base)]++
		if n := used[strings.ToLower(base)]; n > 1 {
			base = fmt.Sprintf("%s (%d)", base, n)
		}

		mdPath := filepath.Join(toDir, base+".md")
		if err := writeFile(mdPath, []byte(doc.Content), opt.Overwrite); err != nil {
			return WriteResult{Written: written}, err
		}
		written = append(written, mdPath)

		if opt.HTML {
			page, err := RenderPage(doc)
			if err != nil {
				return WriteResult{Written: written}, err
			}
			htmlPath := filepath.Join(toDir, base+".html")
			if err := writeFile(htmlPath, page, opt.Overwrite); err != nil {
				return WriteResult{Written: written}, err
			}
			written = append(written, htmlPath)
		}
	}
	return WriteResult{Written: written}, nil
}

// baseName is the title made safe for a single path element.
func baseName(doc model.Document) string {
	name := model.TitleFromFileName(doc.Title)
	name = strings.NewReplacer("/", "-", "\\", "-", "\x00", "").Replace(name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return model.DefaultTitle
	}
	return name
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
