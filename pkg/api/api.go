// Package api serves the live-preview REST API: template CRUD, rendering and
// section parsing.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/parser"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/prompt"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/runtime"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/sections"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/store"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// DefaultRenderTimeout bounds a single render request.
const DefaultRenderTimeout = 10 * time.Second

// Server is the preview API server.
type Server struct {
	app      *fiber.App
	store    *store.Store
	renderer *runtime.Renderer
	library  *prompt.Library // nil when no template directory is served
	log      *zap.SugaredLogger

	// RenderTimeout cancels renders that run longer. Zero means no limit.
	RenderTimeout time.Duration
}

// New creates a new API server. lib may be nil, in which case file-based
// renders and the render_file/render_dir functions are unavailable.
func New(s *store.Store, renderer *runtime.Renderer, lib *prompt.Library) *Server {
	if renderer == nil {
		renderer = runtime.NewRenderer()
	}
	srv := &Server{
		store:         s,
		renderer:      renderer,
		library:       lib,
		log:           logger.Named("api"),
		RenderTimeout: DefaultRenderTimeout,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          srv.handleError,
	})
	app.Use(fiberrecover.New())

	// Templates
	app.Post("/v1/templates", srv.createTemplate)
	app.Get("/v1/templates", srv.listTemplates)
	app.Get("/v1/templates/:name", srv.getTemplate)
	app.Patch("/v1/templates/:name", srv.updateTemplate)
	app.Delete("/v1/templates/:name", srv.deleteTemplate)

	// Template library on disk
	app.Get("/v1/library", srv.listLibrary)

	// Rendering
	app.Post("/v1/render", srv.render)
	app.Post("/v1/sections", srv.parseSections)
	app.Get("/v1/renders", srv.listRenders)
	app.Get("/v1/renders/:id", srv.getRender)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Template Handlers ---

type templateRequest struct {
	Name        string `json:"name"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

func (s *Server) createTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Name == "" {
		return s.badRequest(c, "name is required")
	}
	if _, err := checkSource(req.Source); err != nil {
		return s.fail(c, err)
	}

	t, err := s.store.CreateTemplate(req.Name, req.Source, req.Description)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(200).JSON(t)
}

func (s *Server) getTemplate(c *fiber.Ctx) error {
	t, err := s.store.GetTemplate(c.Params("name"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(200).JSON(t)
}

func (s *Server) listTemplates(c *fiber.Ctx) error {
	return c.Status(200).JSON(fiber.Map{"templates": s.store.ListTemplates()})
}

func (s *Server) updateTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if _, err := checkSource(req.Source); err != nil {
		return s.fail(c, err)
	}

	t, err := s.store.UpdateTemplate(c.Params("name"), req.Source, req.Description)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(200).JSON(t)
}

func (s *Server) deleteTemplate(c *fiber.Ctx) error {
	if err := s.store.DeleteTemplate(c.Params("name")); err != nil {
		return s.fail(c, err)
	}
	return c.Status(200).JSON(fiber.Map{})
}

func (s *Server) listLibrary(c *fiber.Ctx) error {
	if s.library == nil {
		return s.fail(c, errors.Wrap(errors.ErrNotFound, "no template directory is configured"))
	}
	names, err := s.library.List()
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(200).JSON(fiber.Map{"root": s.library.Root(), "files": names})
}

// checkSource validates frontmatter and template syntax and returns the
// parsed document.
func checkSource(source string) (*prompt.Document, error) {
	doc, err := prompt.ParseDocument(source)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if _, err := parser.Parse(doc.Body); err != nil {
		return nil, err
	}
	return doc, nil
}

// --- Render Handlers ---

// renderRequest selects exactly one of Template (stored), File (library) or
// Source (inline). When Base is set the selected template only contributes
// its blocks, and Base is rendered with them.
type renderRequest struct {
	Template  string            `json:"template"`
	File      string            `json:"file"`
	Source    string            `json:"source"`
	Base      string            `json:"base"`
	Variables types.Value       `json:"variables"`
	Blocks    map[string]string `json:"blocks"`
}

func (r *renderRequest) target() (string, error) {
	n := 0
	for _, s := range []string{r.Template, r.File, r.Source} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return "", errors.Wrap(errors.ErrInvalidRequest, "exactly one of template, file or source is required")
	}
	switch {
	case r.Template != "":
		return r.Template, nil
	case r.File != "":
		return r.File, nil
	}
	return "", nil
}

func (s *Server) render(c *fiber.Ctx) error {
	var req renderRequest
	if err := c.BodyParser(&req); err != nil {
		return s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	name, err := req.target()
	if err != nil {
		return s.fail(c, err)
	}
	vars, err := variablesOf(req.Variables)
	if err != nil {
		return s.fail(c, err)
	}

	ctx := c.UserContext()
	if s.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RenderTimeout)
		defer cancel()
	}

	// A missing target is the caller's mistake and is not recorded. Missing
	// includes found while rendering are render failures.
	if err := s.checkTarget(&req); err != nil {
		return s.fail(c, err)
	}

	record := store.Render{
		Template:  name,
		Variables: req.Variables.String(),
		StartTime: time.Now(),
	}
	text, revision, err := s.renderTarget(ctx, &req, s.renderContext(vars, req.Blocks))
	record.TemplateRevisionID = revision
	record.EndTime = time.Now()
	if err != nil {
		record.State = store.RenderFailed
		record.Error = &store.RenderError{Message: err.Error(), Line: errorLine(err)}
		id := s.store.RecordRender(record)
		s.log.Infow("render failed", "id", id, "template", name, "error", err)
		code, status := classify(err)
		if code == 404 {
			code, status = 400, "FAILED_PRECONDITION"
		}
		return s.failWith(c, code, status, err, "renderId", id)
	}

	record.State = store.RenderSucceeded
	record.Text = text
	record.Messages = sections.Parse(text)
	id := s.store.RecordRender(record)
	return c.Status(200).JSON(fiber.Map{
		"id":       id,
		"text":     text,
		"messages": record.Messages,
	})
}

// checkTarget reports a missing or invalid template or base named by req.
func (s *Server) checkTarget(req *renderRequest) error {
	if req.File != "" {
		if s.library == nil {
			return errors.Wrap(errors.ErrNotFound, "no template directory is configured")
		}
		for _, name := range []string{req.File, req.Base} {
			if name == "" {
				continue
			}
			if _, err := s.library.Load(name); errors.IsAny(err, errors.ErrNotFound, errors.ErrInvalidRequest) {
				return err
			}
		}
		return nil
	}
	for _, name := range []string{req.Template, req.Base} {
		if name == "" {
			continue
		}
		if _, err := s.store.GetTemplate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) renderContext(vars map[string]types.Value, blocks map[string]string) *runtime.RenderContext {
	if s.library != nil {
		return s.library.Context(vars, blocks)
	}
	return &runtime.RenderContext{Variables: vars, Blocks: blocks}
}

// renderTarget renders the template selected by req and returns the output
// and, for stored templates, the revision rendered.
func (s *Server) renderTarget(ctx context.Context, req *renderRequest, rc *runtime.RenderContext) (string, string, error) {
	if req.File != "" {
		if s.library == nil {
			return "", "", errors.Wrap(errors.ErrNotFound, "no template directory is configured")
		}
		if req.Base != "" {
			out, err := s.library.Compose(ctx, req.Base, req.File, rc)
			return out, "", err
		}
		out, err := s.library.Render(ctx, req.File, rc)
		return out, "", err
	}

	body, revision := req.Source, ""
	if req.Template != "" {
		t, err := s.store.GetTemplate(req.Template)
		if err != nil {
			return "", "", err
		}
		body, revision = t.Source, t.RevisionID
	}
	doc, err := prompt.ParseDocument(body)
	if err != nil {
		return "", revision, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	if req.Base == "" {
		out, err := s.renderer.Render(ctx, doc.Body, rc)
		return out, revision, err
	}

	blocks, err := s.renderer.ExtractBlocks(ctx, doc.Body, rc)
	if err != nil {
		return "", revision, err
	}
	for k, v := range rc.Blocks {
		blocks[k] = v
	}
	base, err := s.store.GetTemplate(req.Base)
	if err != nil {
		return "", revision, err
	}
	baseDoc, err := prompt.ParseDocument(base.Source)
	if err != nil {
		return "", revision, errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	composed := *rc
	composed.Blocks = blocks
	out, err := s.renderer.Render(ctx, baseDoc.Body, &composed)
	return out, revision, err
}

// variablesOf converts the request's variables object to a render scope.
func variablesOf(v types.Value) (map[string]types.Value, error) {
	switch v.Type() {
	case types.TypeUndefined, types.TypeNull:
		return nil, nil
	case types.TypeMap:
		m := v.AsMap()
		out := make(map[string]types.Value, m.Len())
		for _, k := range m.Keys() {
			out[k], _ = m.Get(k)
		}
		return out, nil
	}
	return nil, errors.Wrapf(errors.ErrInvalidRequest, "variables must be an object, got %s", v.Type())
}

type sectionsRequest struct {
	Text string `json:"text"`
}

func (s *Server) parseSections(c *fiber.Ctx) error {
	var req sectionsRequest
	if err := c.BodyParser(&req); err != nil {
		return s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	return c.Status(200).JSON(fiber.Map{"messages": sections.Parse(req.Text)})
}

func (s *Server) getRender(c *fiber.Ctx) error {
	r, err := s.store.GetRender(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(200).JSON(r)
}

func (s *Server) listRenders(c *fiber.Ctx) error {
	renders := s.store.ListRenders(c.Query("template"))
	if renders == nil {
		renders = []*store.Render{}
	}
	return c.Status(200).JSON(fiber.Map{"renders": renders})
}

// --- Errors ---

func (s *Server) badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(400).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    400,
			"message": msg,
			"status":  "INVALID_ARGUMENT",
		},
	})
}

// fail writes the error envelope for err. extra are key/value pairs added to
// the top level of the response.
func (s *Server) fail(c *fiber.Ctx, err error, extra ...any) error {
	code, status := classify(err)
	return s.failWith(c, code, status, err, extra...)
}

func (s *Server) failWith(c *fiber.Ctx, code int, status string, err error, extra ...any) error {
	body := fiber.Map{
		"code":    code,
		"message": err.Error(),
		"status":  status,
	}
	if line := errorLine(err); line > 0 {
		body["line"] = line
	}
	resp := fiber.Map{"error": body}
	for i := 0; i+1 < len(extra); i += 2 {
		resp[fmt.Sprint(extra[i])] = extra[i+1]
	}
	if code >= 500 {
		s.log.Errorw("request failed", "path", c.Path(), "error", err)
	} else {
		s.log.Debugw("request rejected", "path", c.Path(), "code", code, "error", err)
	}
	return c.Status(code).JSON(resp)
}

// handleError renders errors that escape handlers, including recovered
// panics, in the same envelope.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code, status := 500, "INTERNAL"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		switch code {
		case 404:
			status = "NOT_FOUND"
		case 405:
			status = "UNIMPLEMENTED"
		default:
			if code < 500 {
				status = "INVALID_ARGUMENT"
			}
		}
	}
	return s.failWith(c, code, status, err)
}

func classify(err error) (int, string) {
	var pe *parser.ParseError
	switch {
	case errors.As(err, &pe):
		return 400, "INVALID_ARGUMENT"
	case errors.Is(err, errors.ErrNotFound):
		return 404, "NOT_FOUND"
	case errors.Is(err, errors.ErrConflict):
		return 409, "ALREADY_EXISTS"
	case errors.Is(err, errors.ErrInvalidRequest):
		return 400, "INVALID_ARGUMENT"
	case errors.Is(err, runtime.ErrIncludeDepth):
		return 400, "FAILED_PRECONDITION"
	case errors.Is(err, context.DeadlineExceeded):
		return 504, "DEADLINE_EXCEEDED"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELLED"
	}
	return 500, "INTERNAL"
}

func errorLine(err error) int {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
