package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"livepreview/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaffoldServiceGeneratesTemplateSet(t *testing.T) {
	svc, err := NewScaffoldService(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	sc, err := svc.Generate(context.Background(), `a "todo" app </script>`)
	require.NoError(t, err)

	for _, f := range []string{
		"package.json", "index.html", "src/App.tsx", "src/main.tsx", "src/index.css",
		"vite.config.ts", "tsconfig.json", "tsconfig.node.json", "netlify.toml",
	} {
		assert.FileExists(t, filepath.Join(sc.Dir, filepath.FromSlash(f)))
	}

	app, err := os.ReadFile(filepath.Join(sc.Dir, "src", "App.tsx"))
	require.NoError(t, err)
	assert.Contains(t, string(app), `const prompt = "a \"todo\" app \u003c/script\u003e";`)
	assert.Contains(t, string(app), "style={{ padding: '2rem'")

	index, err := os.ReadFile(filepath.Join(sc.Dir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<title>a &#34;todo&#34; app &lt;/script&gt;</title>")
	// deployed unbuilt, so the page must show content without the bundle
	assert.Contains(t, string(index), `<p>Generated from prompt: "a &#34;todo&#34; app &lt;/script&gt;"</p>`)
	assert.NotContains(t, string(index), `<div id="root"></div>`)

	require.NoError(t, sc.Remove())
	assert.NoDirExists(t, sc.Dir)
}

func TestScaffoldServiceConcurrentCallsAreIsolated(t *testing.T) {
	svc, err := NewScaffoldService(t.TempDir(), logger.NewNop())
	require.NoError(t, err)

	const n = 8
	dirs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sc, err := svc.Generate(context.Background(), "app")
			if assert.NoError(t, err) {
				dirs[i] = sc.Dir
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, d := range dirs {
		assert.False(t, seen[d], "directory %s reused", d)
		seen[d] = true
	}
}

func TestScaffoldServiceTemplateFailure(t *testing.T) {
	fsys := fstest.MapFS{
		"tpl/broken.txt.tmpl": {Data: []byte(`[[ template "missing" ]]`)},
	}
	base := t.TempDir()
	svc, err := newScaffoldService(fsys, "tpl", base, logger.NewNop())
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "app")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Contains(t, genErr.Error(), "render broken.txt")

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed scaffold must be cleaned up")
}

func TestScaffoldServiceRejectsEmptyTemplateSet(t *testing.T) {
	_, err := newScaffoldService(fstest.MapFS{"tpl/readme.md": {Data: []byte("x")}}, "tpl", t.TempDir(), logger.NewNop())
	assert.Error(t, err)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Preview App", title("   "))
	assert.Equal(t, "a todo app", title("a  todo\napp"))
	long := title(strings.Repeat("é", 100))
	assert.Equal(t, maxTitleRunes+3, len([]rune(long)))
}
