package prompt

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/runtime"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMeta Metadata
		wantBody string
		wantErr  bool
	}{
		{
			name: "full frontmatter",
			input: `---
name: blacksmith
description: Gruff village smith
version: "1.2"
model: anthropic/claude-sonnet-4
temperature: 0.7
max_tokens: 800
variables: [npc, player.name]
---
You are {{ npc.name }}.`,
			wantMeta: Metadata{
				Name:        "blacksmith",
				Description: "Gruff village smith",
				Version:     "1.2",
				Model:       "anthropic/claude-sonnet-4",
				Temperature: floatPtr(0.7),
				MaxTokens:   intPtr(800),
				Variables:   []string{"npc", "player.name"},
			},
			wantBody: "You are {{ npc.name }}.",
		},
		{
			name:     "no frontmatter",
			input:    "Just a body\n---\nwith a rule",
			wantBody: "Just a body\n---\nwith a rule",
		},
		{
			name:     "empty frontmatter",
			input:    "---\n---\nBody",
			wantBody: "Body",
		},
		{
			name:     "unclosed frontmatter is body",
			input:    "---\nname: x\nno close",
			wantBody: "---\nname: x\nno close",
		},
		{
			name:     "body keeps later rules",
			input:    "---\nname: x\n---\nA\n---\nB",
			wantMeta: Metadata{Name: "x"},
			wantBody: "A\n---\nB",
		},
		{
			name:    "temperature out of range",
			input:   "---\ntemperature: 3\n---\nx",
			wantErr: true,
		},
		{
			name:    "non-positive max_tokens",
			input:   "---\nmax_tokens: 0\n---\nx",
			wantErr: true,
		},
		{
			name:    "bad yaml",
			input:   "---\nname: [unclosed\n---\nx",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeta, doc.Metadata)
			assert.Equal(t, tt.wantBody, doc.Body)
		})
	}
}

func TestMissingVariables(t *testing.T) {
	doc := &Document{Metadata: Metadata{Variables: []string{"npc", "player.name", "scene"}}}
	vars := map[string]types.Value{
		"npc":    types.NewMap(nil),
		"player": types.NewMap(nil),
	}
	assert.Equal(t, []string{"scene"}, doc.MissingVariables(vars))
}

func TestLoadVariables(t *testing.T) {
	data := []byte(`
npc:
  name: Mara
  zeta: 1
  alpha: 2.5
  tags: [smith, "wary"]
  married: false
  spouse: null
count: 3
hex: 0x10
`)
	vars, err := LoadVariables(data)
	require.NoError(t, err)

	npc := vars["npc"]
	require.Equal(t, types.TypeMap, npc.Type())
	assert.Equal(t, []string{"name", "zeta", "alpha", "tags", "married", "spouse"}, npc.AsMap().Keys())
	assert.Equal(t, `{"name":"Mara","zeta":1,"alpha":2.5,"tags":["smith","wary"],"married":false,"spouse":null}`, npc.String())
	assert.True(t, vars["count"].Equal(types.NewInt(3)))
	assert.True(t, vars["hex"].Equal(types.NewInt(16)))
}

func TestLoadVariablesErrors(t *testing.T) {
	_, err := LoadVariables([]byte("- a\n- b\n"))
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "top-level keys")

	_, err = LoadVariables([]byte("a: [unclosed"))
	require.Error(t, err)

	vars, err := LoadVariables(nil)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func newLibrary(t *testing.T, files map[string]string) *Library {
	t.Helper()
	lib, err := NewLibrary(writeFiles(t, files), nil)
	require.NoError(t, err)
	return lib
}

func TestLibraryLoadAndList(t *testing.T) {
	lib := newLibrary(t, map[string]string{
		"base.md":            "---\nname: base\n---\nHello",
		"npcs/mara.prompt":   "Mara",
		"notes/readme.json":  "{}",
		"scenes/tavern.tmpl": "Tavern",
		"scenes/market.txt":  "Market",
	})

	names, err := lib.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"base.md", "npcs/mara.prompt", "scenes/market.txt", "scenes/tavern.tmpl"}, names)

	tmpl, err := lib.Load("base")
	require.NoError(t, err)
	assert.Equal(t, "base.md", tmpl.Name)
	assert.Equal(t, "base", tmpl.Doc.Metadata.Name)
	assert.True(t, lib.Cached("base.md"))

	again, err := lib.Load("base.md")
	require.NoError(t, err)
	assert.Same(t, tmpl, again)

	lib.Invalidate("base.md")
	assert.False(t, lib.Cached("base.md"))

	_, err = lib.Load("missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = lib.Load("../../etc/passwd")
	assert.Error(t, err)
}

func TestLibraryLoadParseError(t *testing.T) {
	lib := newLibrary(t, map[string]string{"bad.md": "{% for x %}{% endfor %}"})
	_, err := lib.Load("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed for")
}

func TestLibraryReloadsChangedFile(t *testing.T) {
	lib := newLibrary(t, map[string]string{"a.md": "one"})
	out, err := lib.Render(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	p := filepath.Join(lib.Root(), "a.md")
	require.NoError(t, os.WriteFile(p, []byte("two"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(p, later, later))

	out, err = lib.Render(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", out)
}

func TestRenderFileAndDir(t *testing.T) {
	lib := newLibrary(t, map[string]string{
		"main.md":            "[ system ]\n{{ render_file(\"persona\") }}\n{{ render_dir(\"scenes\") }}\n[ end system ]",
		"persona.md":         "---\nname: persona\n---\nYou are {{ npc.name }}.",
		"scenes/01-intro.md": "Intro for {{ npc.name }}.\n",
		"scenes/02-empty.md": "{% if false %}hidden{% endif %}",
		"scenes/03-outro.md": "Outro.",
		"loop.md":            `{% for n in names %}{{ render_file("item") }}{% endfor %}`,
		"item.md":            "<{{ n }}>",
		"self.md":            `{{ render_file("self") }}`,
	})
	vars := map[string]types.Value{
		"npc": types.FromGo(map[string]any{"name": "Mara"}),
	}

	out, err := lib.Render(context.Background(), "main", lib.Context(vars, nil))
	require.NoError(t, err)
	assert.Equal(t, "[ system ]\nYou are Mara.\nIntro for Mara.\n\nOutro.\n[ end system ]", out)

	out, err = lib.Render(context.Background(), "loop", lib.Context(map[string]types.Value{
		"names": types.FromGo([]any{"a", "b"}),
	}, nil))
	require.NoError(t, err)
	assert.Equal(t, "<a><b>", out)

	_, err = lib.Render(context.Background(), "self", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, runtime.ErrIncludeDepth))

	out, err = lib.Render(context.Background(), "missing", nil)
	assert.Empty(t, out)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCompose(t *testing.T) {
	lib := newLibrary(t, map[string]string{
		"base.md": "{% block persona %}A villager.{% endblock %}\n{% block rules %}Stay in character.{% endblock %}",
		"mara.md": `{% set title = "smith" %}{% block persona %}{{ npc.name }} the {{ title }}.{% endblock %}`,
	})
	vars := map[string]types.Value{"npc": types.FromGo(map[string]any{"name": "Mara"})}

	out, err := lib.Compose(context.Background(), "base", "mara", lib.Context(vars, nil))
	require.NoError(t, err)
	assert.Equal(t, "Mara the smith.\nStay in character.", out)

	out, err = lib.Compose(context.Background(), "base", "mara", lib.Context(vars, map[string]string{"rules": "No rules."}))
	require.NoError(t, err)
	assert.Equal(t, "Mara the smith.\nNo rules.", out)
}

func TestWatchInvalidates(t *testing.T) {
	lib := newLibrary(t, map[string]string{"a.md": "one"})
	lib.DebouncePeriod = 10 * time.Millisecond

	_, err := lib.Load("a")
	require.NoError(t, err)

	var mu sync.Mutex
	var changed []string
	lib.OnChange(func(names []string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, names...)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, lib.Watch(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(lib.Root(), "a.md"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(lib.Root(), "ignored.json"), []byte("{}"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a.md"}, changed[:1])
	mu.Unlock()
	assert.False(t, lib.Cached("a.md"))
}
