package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/models"
	"github.com/ternarybob/domus/internal/services/research"
)

// projectKeyPattern constrains project names used as durable actor keys.
var projectKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ResearchHandler serves the research project API. Each mutating request
// carries an idempotency key (Idempotency-Key header, generated when
// absent); re-driving a completed invocation returns its recorded outcome.
type ResearchHandler struct {
	service  *research.Service
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewResearchHandler creates the research API handler.
func NewResearchHandler(service *research.Service, logger arbor.ILogger) *ResearchHandler {
	return &ResearchHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type createProjectRequest struct {
	Criteria string `json:"criteria" validate:"required"`
}

type addAdRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

type askQuestionRequest struct {
	Question string `json:"question" validate:"required"`
}

// HandleProjects routes everything under /api/projects/.
//
//	POST  /api/projects/{name}                       create
//	GET   /api/projects/{name}                       criteria + counts
//	POST  /api/projects/{name}/ads                   add listing by url
//	GET   /api/projects/{name}/ads                   list ads
//	PATCH /api/projects/{name}/ads/{adId}/status     relabel ad
//	PATCH /api/projects/{name}/ads/{adId}/notes      replace notes
//	POST  /api/projects/{name}/questions             ask question
//	GET   /api/projects/{name}/questions             list Q&A history
func (h *ResearchHandler) HandleProjects(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		WriteError(w, http.StatusBadRequest, "Missing project name")
		return
	}

	name := segments[0]
	if !projectKeyPattern.MatchString(name) {
		WriteError(w, http.StatusBadRequest, "Invalid project name: must match ^[a-z0-9][a-z0-9-]{0,62}$")
		return
	}

	switch {
	case len(segments) == 1:
		h.handleProject(w, r, name)
	case len(segments) == 2 && segments[1] == "ads":
		h.handleAds(w, r, name)
	case len(segments) == 2 && segments[1] == "questions":
		h.handleQuestions(w, r, name)
	case len(segments) == 4 && segments[1] == "ads" && segments[3] == "status":
		h.handleUpdateStatus(w, r, name, segments[2])
	case len(segments) == 4 && segments[1] == "ads" && segments[3] == "notes":
		h.handleUpdateNotes(w, r, name, segments[2])
	default:
		WriteError(w, http.StatusNotFound, "Unknown route")
	}
}

func (h *ResearchHandler) handleProject(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodPost:
		var req createProjectRequest
		if !h.decodeBody(w, r, &req) {
			return
		}
		info, err := h.service.Create(r.Context(), invocationID(r), name, req.Criteria)
		if err != nil {
			h.writeFault(w, err, "Project create failed")
			return
		}
		WriteJSON(w, http.StatusCreated, info)

	case http.MethodGet:
		info, err := h.service.GetCriteria(r.Context(), name)
		if err != nil {
			h.writeFault(w, err, "Project lookup failed")
			return
		}
		WriteJSON(w, http.StatusOK, info)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ResearchHandler) handleAds(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodPost:
		var req addAdRequest
		if !h.decodeBody(w, r, &req) {
			return
		}
		ad, err := h.service.AddAd(r.Context(), invocationID(r), name, req.URL)
		if err != nil {
			h.writeFault(w, err, "Ad scrape failed")
			return
		}
		WriteJSON(w, http.StatusCreated, ad)

	case http.MethodGet:
		ads, err := h.service.GetAds(r.Context(), name)
		if err != nil {
			h.writeFault(w, err, "Ad list failed")
			return
		}
		WriteJSON(w, http.StatusOK, ads)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ResearchHandler) handleQuestions(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodPost:
		var req askQuestionRequest
		if !h.decodeBody(w, r, &req) {
			return
		}
		entry, err := h.service.AskQuestion(r.Context(), invocationID(r), name, req.Question)
		if err != nil {
			h.writeFault(w, err, "Question failed")
			return
		}
		WriteJSON(w, http.StatusCreated, entry)

	case http.MethodGet:
		questions, err := h.service.GetQuestions(r.Context(), name)
		if err != nil {
			h.writeFault(w, err, "Question list failed")
			return
		}
		WriteJSON(w, http.StatusOK, questions)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ResearchHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request, name, adID string) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}
	var req updateStatusRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	ad, err := h.service.UpdateStatus(r.Context(), invocationID(r), name, adID, models.AdStatus(req.Status))
	if err != nil {
		h.writeFault(w, err, "Status update failed")
		return
	}
	WriteJSON(w, http.StatusOK, ad)
}

func (h *ResearchHandler) handleUpdateNotes(w http.ResponseWriter, r *http.Request, name, adID string) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}
	var req updateNotesRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	ad, err := h.service.UpdateNotes(r.Context(), invocationID(r), name, adID, req.Notes)
	if err != nil {
		h.writeFault(w, err, "Notes update failed")
		return
	}
	WriteJSON(w, http.StatusOK, ad)
}

func (h *ResearchHandler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *ResearchHandler) writeFault(w http.ResponseWriter, err error, msg string) {
	h.logger.Warn().Err(err).Msg(msg)
	WriteFault(w, err)
}

// invocationID returns the client-supplied idempotency key, or a fresh one.
func invocationID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		return key
	}
	return common.NewInvocationID()
}
