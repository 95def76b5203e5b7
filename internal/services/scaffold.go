package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"livepreview/internal/logger"
)

//go:embed templates
var appTemplates embed.FS

const (
	templateRoot   = "templates/app"
	templateSuffix = ".tmpl"
	maxTitleRunes  = 60
)

type scaffoldData struct {
	Prompt string
	Title  string
}

type scaffoldFile struct {
	rel  string
	tmpl *template.Template
}

// ScaffoldService renders the embedded Vite + React template set into a fresh
// temporary directory per call.
type ScaffoldService struct {
	baseDir string
	files   []scaffoldFile
	log     *logger.Logger
}

func NewScaffoldService(baseDir string, log *logger.Logger) (*ScaffoldService, error) {
	return newScaffoldService(appTemplates, templateRoot, baseDir, log)
}

func newScaffoldService(fsys fs.FS, root, baseDir string, log *logger.Logger) (*ScaffoldService, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("scaffold: create base dir: %w", err)
	}

	funcs := template.FuncMap{"jsString": jsString}
	var files []scaffoldFile
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, templateSuffix) {
			return nil
		}
		raw, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		rel := strings.TrimSuffix(strings.TrimPrefix(p, root+"/"), templateSuffix)
		// "[[ ]]" keeps JSX double braces literal
		t, err := template.New(rel).Delims("[[", "]]").Funcs(funcs).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		files = append(files, scaffoldFile{rel: rel, tmpl: t})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scaffold: load templates: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("scaffold: no templates under %s", root)
	}

	return &ScaffoldService{
		baseDir: baseDir,
		files:   files,
		log:     log.With("component", "ScaffoldService"),
	}, nil
}

func (s *ScaffoldService) Generate(ctx context.Context, prompt string) (*Scaffold, error) {
	dir, err := os.MkdirTemp(s.baseDir, "preview-*")
	if err != nil {
		return nil, &GenerationError{Msg: "create scaffold directory: " + err.Error(), Err: err}
	}

	data := scaffoldData{Prompt: prompt, Title: title(prompt)}
	for _, f := range s.files {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(dir)
			return nil, &GenerationError{Msg: "code generation interrupted: " + err.Error(), Err: err}
		}
		if err := writeTemplate(dir, f, data); err != nil {
			_ = os.RemoveAll(dir)
			return nil, &GenerationError{Msg: fmt.Sprintf("render %s: %v", f.rel, err), Err: err}
		}
	}

	s.log.Debug("Scaffold generated", "dir", dir, "files", len(s.files))
	return &Scaffold{Dir: dir}, nil
}

func writeTemplate(dir string, f scaffoldFile, data scaffoldData) error {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, data); err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.FromSlash(path.Clean(f.rel)))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0o644)
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func title(prompt string) string {
	t := strings.Join(strings.Fields(prompt), " ")
	r := []rune(t)
	if len(r) > maxTitleRunes {
		t = string(r[:maxTitleRunes]) + "..."
	}
	if t == "" {
		return "Preview App"
	}
	return t
}
