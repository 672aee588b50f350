package prompt

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/ast"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/parser"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/runtime"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/stdlib"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// Extensions are the file types a Library treats as templates, in the order
// tried when a name is given without one.
var Extensions = []string{".md", ".prompt", ".tmpl", ".txt"}

// Template is a parsed prompt file.
type Template struct {
	// Name is the slash-separated path relative to the library root.
	Name    string
	Doc     *Document
	Nodes   []ast.Node
	ModTime time.Time
}

// Library loads templates from a directory tree and caches them until the
// file changes.
type Library struct {
	root     string
	renderer *runtime.Renderer
	log      *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]*Template

	// DebouncePeriod delays invalidation after file events. Zero means 200ms.
	DebouncePeriod time.Duration

	watchMu   sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
	callbacks []func(names []string)
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string, renderer *runtime.Renderer) (*Library, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "opening template directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Newf("%s is not a directory", dir)
	}
	if renderer == nil {
		renderer = runtime.NewRenderer()
	}
	return &Library{
		root:     abs,
		renderer: renderer,
		log:      logger.Named("prompt"),
		cache:    make(map[string]*Template),
		pending:  make(map[string]struct{}),
	}, nil
}

// Root returns the absolute library directory.
func (l *Library) Root() string {
	return l.root
}

func isTemplate(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// resolve maps a template name to a file under the root. Names may omit the
// extension. Names that escape the root are rejected.
func (l *Library) resolve(name string) (string, string, error) {
	clean := path.Clean("/" + filepath.ToSlash(name))[1:]
	if clean == "" {
		return "", "", errors.Wrapf(errors.ErrInvalidRequest, "empty template name")
	}
	full := filepath.Join(l.root, filepath.FromSlash(clean))
	if rel, err := filepath.Rel(l.root, full); err != nil || strings.HasPrefix(rel, "..") {
		return "", "", errors.Wrapf(errors.ErrInvalidRequest, "template %q is outside the library", name)
	}

	if filepath.Ext(clean) != "" {
		if _, err := os.Stat(full); err == nil {
			return clean, full, nil
		}
	}
	for _, ext := range Extensions {
		if _, err := os.Stat(full + ext); err == nil {
			return clean + ext, full + ext, nil
		}
	}
	return "", "", errors.Wrapf(errors.ErrNotFound, "template %q", name)
}

// Load returns the parsed template, reading it again if the file changed
// since it was cached.
func (l *Library) Load(name string) (*Template, error) {
	key, full, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "template %q", name)
	}

	l.mu.RLock()
	cached, ok := l.cache[key]
	l.mu.RUnlock()
	if ok && cached.ModTime.Equal(info.ModTime()) {
		return cached, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	doc, err := ParseDocument(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "template %s", key)
	}
	nodes, err := parser.Parse(doc.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "template %s", key)
	}

	tmpl := &Template{Name: key, Doc: doc, Nodes: nodes, ModTime: info.ModTime()}
	l.mu.Lock()
	l.cache[key] = tmpl
	l.mu.Unlock()
	l.log.Debugw("Loaded template", "name", key)
	return tmpl, nil
}

// List returns every template name under the root, sorted.
func (l *Library) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTemplate(p) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", l.root)
	}
	sort.Strings(names)
	return names, nil
}

// Invalidate drops cached templates by name; no names drops everything.
func (l *Library) Invalidate(names ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(names) == 0 {
		l.cache = make(map[string]*Template)
		return
	}
	for _, n := range names {
		delete(l.cache, n)
	}
}

// Cached reports whether name is in the cache.
func (l *Library) Cached(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.cache[name]
	return ok
}

// Register adds the library's host functions to r:
//
//	render_file(name)  renders another template with the caller's variables
//	render_dir(dir)    renders every template directly inside dir, sorted by
//	                   name, joined by a blank line
func (l *Library) Register(r *stdlib.Registry) {
	r.Register("render_file", l.renderFileFunc)
	r.Register("render_dir", l.renderDirFunc)
}

// Context builds a render context whose host functions include the
// library's. Extra functions may be registered on the returned registry.
func (l *Library) Context(vars map[string]types.Value, blocks map[string]string) *runtime.RenderContext {
	funcs := stdlib.NewRegistry()
	l.Register(funcs)
	return &runtime.RenderContext{Variables: vars, Blocks: blocks, Functions: funcs}
}

func (l *Library) withFunctions(rc *runtime.RenderContext) *runtime.RenderContext {
	if rc == nil {
		return l.Context(nil, nil)
	}
	if rc.Functions != nil {
		return rc
	}
	out := *rc
	out.Functions = stdlib.NewRegistry()
	l.Register(out.Functions)
	return &out
}

// Render renders a named template.
func (l *Library) Render(ctx context.Context, name string, rc *runtime.RenderContext) (string, error) {
	tmpl, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return l.renderer.RenderNodes(ctx, tmpl.Nodes, l.withFunctions(rc))
}

// Compose renders base with the blocks of override substituted, the way a
// character template overrides sections of a shared base. Blocks already in
// rc take precedence over the override's.
func (l *Library) Compose(ctx context.Context, base, override string, rc *runtime.RenderContext) (string, error) {
	rc = l.withFunctions(rc)
	over, err := l.Load(override)
	if err != nil {
		return "", err
	}
	blocks, err := l.renderer.ExtractBlocks(ctx, over.Doc.Body, rc)
	if err != nil {
		return "", errors.Wrapf(err, "extracting blocks from %s", over.Name)
	}
	for name, text := range rc.Blocks {
		blocks[name] = text
	}
	composed := *rc
	composed.Blocks = blocks
	return l.Render(ctx, base, &composed)
}

func (l *Library) callerContext(ctx context.Context) *runtime.RenderContext {
	if rc, ok := runtime.CurrentContext(ctx); ok {
		return rc
	}
	return l.Context(nil, nil)
}

func (l *Library) renderFileFunc(ctx context.Context, args []types.Value) (types.Value, error) {
	if len(args) == 0 || args[0].Type() != types.TypeString {
		return types.Undefined, errors.Wrap(errors.ErrInvalidRequest, "render_file requires a template name")
	}
	out, err := l.Render(ctx, args[0].AsString(), l.callerContext(ctx))
	if err != nil {
		return types.Undefined, err
	}
	return types.NewString(out), nil
}

func (l *Library) renderDirFunc(ctx context.Context, args []types.Value) (types.Value, error) {
	if len(args) == 0 || args[0].Type() != types.TypeString {
		return types.Undefined, errors.Wrap(errors.ErrInvalidRequest, "render_dir requires a directory")
	}
	dir := path.Clean("/" + filepath.ToSlash(args[0].AsString()))[1:]
	full := filepath.Join(l.root, filepath.FromSlash(dir))
	if rel, err := filepath.Rel(l.root, full); err != nil || strings.HasPrefix(rel, "..") {
		return types.Undefined, errors.Wrapf(errors.ErrInvalidRequest, "directory %q is outside the library", dir)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return types.Undefined, errors.Wrapf(errors.ErrNotFound, "directory %q", dir)
	}

	rc := l.callerContext(ctx)
	var parts []string
	for _, e := range entries {
		if e.IsDir() || !isTemplate(e.Name()) {
			continue
		}
		out, err := l.Render(ctx, path.Join(dir, e.Name()), rc)
		if err != nil {
			return types.Undefined, err
		}
		if out = strings.TrimSpace(out); out != "" {
			parts = append(parts, out)
		}
	}
	return types.NewString(strings.Join(parts, "\n\n")), nil
}
