package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/logging"
	"github.com/JonMunkholm/mlready/internal/pgexport"
	"github.com/JonMunkholm/mlready/internal/recipe"
	"github.com/JonMunkholm/mlready/internal/report"
	"github.com/JonMunkholm/mlready/internal/source"
	"github.com/JonMunkholm/mlready/internal/table"
)

// multipartMemory is how much of a form is kept in memory before spilling
// to temporary files.
const multipartMemory = 8 << 20

// passResponse is the JSON reply of /api/build and /api/replay.
type passResponse struct {
	RecipeID   string            `json:"recipe_id"`
	Recipe     *recipe.Recipe    `json:"recipe"`
	RecipeYAML string            `json:"recipe_yaml,omitempty"`
	Clean      *table.CleanTable `json:"clean"`
	Report     *report.Report    `json:"report"`
	LoadedRows *int64            `json:"loaded_rows,omitempty"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Active   int    `json:"active_passes"`
	Capacity int    `json:"capacity"`
	Database bool   `json:"database"`
}

// passRequest is a parsed multipart upload.
type passRequest struct {
	raw    *table.RawTable
	recipe *recipe.Recipe
	format recipe.Format
	load   string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{
		Status:   "ok",
		Active:   s.limiter.Active(),
		Capacity: s.limiter.Capacity(),
		Database: s.db != nil,
	})
}

// handleBuild infers a recipe for the uploaded table.
//
// Form fields: file (required), recipe_format (json|yaml), load (target
// table name).
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	req, err := s.parsePassRequest(w, r, false)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.runPass(r.Context(), report.ModeBuild, func(ctx context.Context) (*engine.Result, error) {
		return s.engine.Build(ctx, req.raw)
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.respondPass(w, r, req, res)
}

// handleReplay applies an uploaded recipe to the uploaded table.
//
// Form fields: file and recipe (file or text, both required), recipe_format,
// load.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	req, err := s.parsePassRequest(w, r, true)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.runPass(r.Context(), report.ModeReplay, func(ctx context.Context) (*engine.Result, error) {
		return s.engine.Replay(ctx, req.raw, req.recipe)
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.respondPass(w, r, req, res)
}

// handleReport runs a pass and renders only its report: HTML by default,
// plain text with ?format=text. A recipe in the form selects replay.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parsePassRequest(w, r, false)
	if err != nil {
		respondError(w, r, err)
		return
	}

	mode := report.ModeBuild
	pass := func(ctx context.Context) (*engine.Result, error) { return s.engine.Build(ctx, req.raw) }
	if req.recipe != nil {
		mode = report.ModeReplay
		pass = func(ctx context.Context) (*engine.Result, error) { return s.engine.Replay(ctx, req.raw, req.recipe) }
	}

	res, err := s.runPass(r.Context(), mode, pass)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.RenderText(w, res.Report); err != nil {
			logging.FromContext(r.Context()).Error("render report", "error", err)
		}
		return
	}
	templ.Handler(report.HTML(res.Report)).ServeHTTP(w, r)
}

// runPass runs fn under the limiter and records metrics.
func (s *Server) runPass(ctx context.Context, mode report.Mode, fn func(context.Context) (*engine.Result, error)) (*engine.Result, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTooManyPasses) && s.metrics != nil {
			s.metrics.Rejected()
		}
		return nil, err
	}
	s.trackActive()
	defer func() {
		s.limiter.Release()
		s.trackActive()
	}()

	start := time.Now()
	res, err := fn(ctx)
	if s.metrics != nil {
		if err != nil {
			s.metrics.PassFailed(mode)
		} else {
			s.metrics.ObservePass(res.Report, time.Since(start))
		}
	}
	return res, err
}

func (s *Server) trackActive() {
	if s.metrics != nil {
		s.metrics.SetActive(s.limiter.Active())
	}
}

func (s *Server) respondPass(w http.ResponseWriter, r *http.Request, req *passRequest, res *engine.Result) {
	resp := passResponse{
		RecipeID: res.Report.RecipeID,
		Recipe:   res.Recipe,
		Clean:    res.Clean,
		Report:   res.Report,
	}

	if req.format == recipe.FormatYAML {
		data, err := recipe.Marshal(res.Recipe, recipe.FormatYAML)
		if err != nil {
			respondError(w, r, fmt.Errorf("encode recipe: %w", err))
			return
		}
		resp.RecipeYAML = string(data)
	}

	if req.load != "" {
		n, err := pgexport.Load(r.Context(), s.db, req.load, res.Clean, res.Recipe)
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp.LoadedRows = &n
		logging.FromContext(r.Context()).Info("clean table loaded", "table", req.load, "rows", n)
	}

	render.JSON(w, r, resp)
}

// parsePassRequest reads the multipart form. The table always comes from
// the "file" part; the recipe is read when present and required when
// needRecipe is set.
func (s *Server) parsePassRequest(w http.ResponseWriter, r *http.Request, needRecipe bool) (*passRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	format, err := recipe.ParseFormat(r.FormValue("recipe_format"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidField, err)
	}

	load := strings.TrimSpace(r.FormValue("load"))
	if load != "" && s.db == nil {
		return nil, errLoadDisabled
	}

	raw, err := readTable(r)
	if err != nil {
		return nil, err
	}

	rec, err := readRecipe(r)
	if err != nil {
		return nil, err
	}
	if rec == nil && needRecipe {
		return nil, fmt.Errorf("%w: recipe is required", errInvalidField)
	}

	return &passRequest{raw: raw, recipe: rec, format: format, load: load}, nil
}

func readTable(r *http.Request) (*table.RawTable, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errNoFile
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()

	return source.Read(header.Filename, file)
}

// readRecipe takes the recipe from a "recipe" file part or, failing that, a
// "recipe" text field. It returns nil when neither is present.
func readRecipe(r *http.Request) (*recipe.Recipe, error) {
	file, _, err := r.FormFile("recipe")
	switch {
	case err == nil:
		defer file.Close()
		return recipe.Read(file)
	case !errors.Is(err, http.ErrMissingFile):
		return nil, fmt.Errorf("read recipe upload: %w", err)
	}

	text := r.FormValue("recipe")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return recipe.Read(strings.NewReader(text))
}
