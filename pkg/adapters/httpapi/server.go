// Package httpapi exposes the chat and tree-navigation operations as a JSON
// API over chi.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reveriehq/reverie/internal/logging"
	"github.com/reveriehq/reverie/pkg/chat"
	"github.com/reveriehq/reverie/pkg/dialogue"
	"github.com/reveriehq/reverie/pkg/domain"
	"github.com/reveriehq/reverie/pkg/workflow"
)

// Server wires the chat service and the tree manager into HTTP handlers.
type Server struct {
	Chat   *chat.Service
	Trees  *dialogue.Manager
	Logger *slog.Logger

	// Gatherer backs GET /metrics. Optional.
	Gatherer prometheus.Gatherer
}

// NewHandler builds the router.
func NewHandler(s *Server) http.Handler {
	if s.Logger == nil {
		s.Logger = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/characters/{characterID}/turns", s.handleTurn)
		r.Post("/characters/{characterID}/regenerate", s.handleRegenerate)
		r.Get("/characters/{characterID}/tree", s.handleTree)

		r.Post("/trees/{treeID}/branch", s.handleSwitchBranch)
		r.Delete("/trees/{treeID}/nodes/{nodeID}", s.handleDeleteNode)
		r.Get("/trees/{treeID}/path/{nodeID}", s.handlePath)
		r.Get("/trees/{treeID}/nodes/{nodeID}/children", s.handleChildren)
	})
	return r
}

type turnRequest struct {
	UserInput string `json:"user_input"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var body turnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	characterID := chi.URLParam(r, "characterID")

	res, err := s.Chat.Turn(r.Context(), characterID, body.UserInput)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	characterID := chi.URLParam(r, "characterID")

	res, err := s.Chat.Regenerate(r.Context(), characterID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	characterID := chi.URLParam(r, "characterID")

	tree, err := s.Trees.TreeForCharacter(r.Context(), characterID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type branchRequest struct {
	NodeID string `json:"node_id"`
}

func (s *Server) handleSwitchBranch(w http.ResponseWriter, r *http.Request) {
	var body branchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	treeID := chi.URLParam(r, "treeID")

	if err := s.Trees.SwitchBranch(r.Context(), treeID, body.NodeID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current_node_id": body.NodeID})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	treeID := chi.URLParam(r, "treeID")
	nodeID := chi.URLParam(r, "nodeID")

	tree, err := s.Trees.DeleteNode(r.Context(), treeID, nodeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	treeID := chi.URLParam(r, "treeID")
	nodeID := chi.URLParam(r, "nodeID")

	path, err := s.Trees.PathToNode(r.Context(), treeID, nodeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	treeID := chi.URLParam(r, "treeID")
	nodeID := chi.URLParam(r, "nodeID")

	children, err := s.Trees.ChildNodes(r.Context(), treeID, nodeID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// writeDomainError maps typed and sentinel errors onto HTTP statuses. Store
// misses are 404s, invariant violations are conflicts, bad run parameters
// are the caller's fault.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *workflow.ValidationError
	switch {
	case errors.Is(err, domain.ErrTreeNotFound), errors.Is(err, domain.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRootImmutable), errors.Is(err, chat.ErrNothingToRegenerate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
