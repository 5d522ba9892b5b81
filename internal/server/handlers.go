package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/llm"
	"github.com/michaelbrown/cadforge/internal/script"
	"github.com/michaelbrown/cadforge/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// maxBodyBytes bounds request bodies, scripts included.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

// writeStoreError maps storage errors to status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "cycle not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- Request cycles ---

type processRequest struct {
	Request string `json:"request"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	req.Request = strings.TrimSpace(req.Request)
	if req.Request == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	c := s.Processor.Process(r.Context(), req.Request)
	writeJSON(w, http.StatusOK, c)
}

// --- History ---

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{}

	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = storage.CycleStatus(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	cycles, err := s.Store.ListCycles(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if cycles == nil {
		cycles = []storage.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCycle(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteCycle(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportCycle(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, storage.ExportMarkdown(c))
	case "json":
		data, err := storage.ExportJSON(c)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q (use md or json)", format))
	}
}

// --- Validation ---

type validateRequest struct {
	Script  string `json:"script"`
	Profile string `json:"profile"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	checker := s.Checker
	if req.Profile != "" && req.Profile != checker.Profile().Name {
		p, err := script.LookupProfile(req.Profile)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		checker = script.NewValidator(p, s.Logger)
	}

	writeJSON(w, http.StatusOK, checker.Validate(script.Source(req.Script)))
}

// --- Plugins ---

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Plugins.List())
}

func (s *Server) handleInvokePlugin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.Plugins.Lookup(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("plugin '%s' not found", name))
		return
	}

	params := map[string]any{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &params); err != nil {
			writeDecodeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.Plugins.Invoke(r.Context(), name, params))
}

// --- Provider/Model handlers ---

type providerInfo struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Models  map[string]string `json:"models"`
	IsLocal bool              `json:"is_local"`
	Default bool              `json:"default"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers := []providerInfo{}
	for _, name := range s.Config.ProviderNames() {
		p := s.Config.Providers[name]
		providers = append(providers, providerInfo{
			Name:    name,
			Kind:    p.ClientKind(),
			Models:  p.Models,
			IsLocal: p.IsLocal(),
			Default: name == s.Config.DefaultProvider,
		})
	}
	writeJSON(w, http.StatusOK, providers)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	provider, err := s.Config.Provider(providerName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// local OpenAI-compatible servers are asked for their installed models
	if provider.ClientKind() == llm.KindOpenAI && provider.IsLocal() {
		client := llm.NewClient(providerName, provider.BaseURL, provider.APIKey, "")
		models, err := client.ListModels(r.Context())
		if err != nil {
			s.Logger.Warn("listing models", zap.String("provider", providerName), zap.Error(err))
			writeError(w, http.StatusBadGateway, llm.Describe(err))
			return
		}
		writeJSON(w, http.StatusOK, models)
		return
	}

	models := []llm.ModelInfo{}
	for key, name := range provider.Models {
		models = append(models, llm.ModelInfo{
			Name:       name,
			ModifiedAt: key,
		})
	}
	writeJSON(w, http.StatusOK, models)
}
