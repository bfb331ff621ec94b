package screening

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/session"
	"github.com/JaimeStill/tayyib/pkg/handlers"
	"github.com/JaimeStill/tayyib/pkg/routes"
)

// Handler provides HTTP endpoints for a reviewer's screening session.
type Handler struct {
	sys           System
	identity      *session.Identity
	ledger        *evidence.Ledger
	logger        *slog.Logger
	maxUploadSize int64
}

// NewHandler creates a Handler. ledger may be nil, which disables the
// evidence preview endpoint.
func NewHandler(
	sys System,
	identity *session.Identity,
	ledger *evidence.Ledger,
	logger *slog.Logger,
	maxUploadSize int64,
) *Handler {
	return &Handler{
		sys:           sys,
		identity:      identity,
		ledger:        ledger,
		logger:        logger.With("handler", "screening"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes returns the route group definition for screening endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/screenings",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.History},
			{Method: "POST", Pattern: "", Handler: h.Screen},
			{Method: "DELETE", Pattern: "", Handler: h.End},
			{Method: "POST", Pattern: "/batch", Handler: h.ScreenBatch},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/{id}/evidence", Handler: h.AttachEvidence},
			{Method: "DELETE", Pattern: "/{id}/evidence/{evidenceId}", Handler: h.RemoveEvidence},
			{Method: "GET", Pattern: "/{id}/evidence/{evidenceId}/preview", Handler: h.Preview},
			{Method: "POST", Pattern: "/{id}/submit", Handler: h.Submit},
		},
	}
}

// Screen classifies one product from a JSON body or a multipart upload of
// the ingredient label.
func (h *Handler) Screen(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}

	var req ScreenRequest
	if isMultipart(r) {
		if !h.parseForm(w, r) {
			return
		}
		req.ProductName = r.FormValue("product_name")
		req.IngredientsText = r.FormValue("ingredients_text")
		if len(r.MultipartForm.File["file"]) > 0 {
			f, err := readUpload(r, "file")
			if err != nil {
				handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
				return
			}
			req.IngredientsFile = &classifier.File{
				Filename: f.Filename,
				MimeType: f.MimeType,
				Data:     f.Data,
			}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	result, err := h.sys.Screen(r.Context(), sid, req)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, result)
}

// ScreenBatch classifies several products from a JSON body.
func (h *Handler) ScreenBatch(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	result, err := h.sys.ScreenBatch(r.Context(), sid, req)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, result)
}

// History returns the session's screening history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}

	c, err := h.sys.History(r.Context(), sid)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, c)
}

// Find returns one assessment from the session.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.sys.Find(r.Context(), sid, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// AttachEvidence records an uploaded verification document against an
// ingredient of the assessment.
func (h *Handler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.parseForm(w, r) {
		return
	}

	ingredient := r.FormValue("ingredient")
	if strings.TrimSpace(ingredient) == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: ingredient required", ErrInvalidRequest))
		return
	}

	declared, err := assessment.ParseDeclaredType(r.FormValue("declared_type"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}

	f, err := readUpload(r, "file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	f.DeclaredType = declared

	result, err := h.sys.AttachEvidence(r.Context(), sid, id, ingredient, *f)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, result)
}

// RemoveEvidence deletes an evidence record. Removing a record that is not
// present succeeds with removed=false.
func (h *Handler) RemoveEvidence(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	evidenceID, ok := h.pathID(w, r, "evidenceId")
	if !ok {
		return
	}

	ingredient := r.URL.Query().Get("ingredient")
	if strings.TrimSpace(ingredient) == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: ingredient required", ErrInvalidRequest))
		return
	}

	result, err := h.sys.RemoveEvidence(r.Context(), sid, id, ingredient, evidenceID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Preview serves the stored bytes of an evidence record.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	evidenceID, ok := h.pathID(w, r, "evidenceId")
	if !ok {
		return
	}

	p, err := h.sys.Find(r.Context(), sid, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	for _, rec := range p.Evidence() {
		if rec.ID != evidenceID {
			continue
		}
		if h.ledger == nil {
			break
		}
		path, ok := h.ledger.Preview(rec)
		if !ok {
			break
		}
		w.Header().Set("Content-Type", rec.MimeType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": rec.Filename}))
		http.ServeFile(w, r, path)
		return
	}

	handlers.RespondError(w, h.logger, http.StatusNotFound, ErrEvidenceNotFound)
}

// Submit hands an assessment to the certification pipeline.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	var cmd pipeline.SubmitCommand
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil && !errors.Is(err, io.EOF) {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
			return
		}
	}

	entry, err := h.sys.Submit(r.Context(), sid, id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, entry)
}

// End clears the session and releases its previews.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.sys.EndSession(r.Context(), sid); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	if err := h.identity.Forget(w, r); err != nil {
		h.logger.Warn("failed to expire session cookie", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid, err := h.identity.Resolve(w, r)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return "", false
	}
	return sid, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: invalid %s", ErrInvalidRequest, name))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > h.maxUploadSize {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
			return false
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return false
	}
	return true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func readUpload(r *http.Request, field string) (*evidence.File, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %s file required", ErrInvalidRequest, field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidRequest, field, err)
	}

	return &evidence.File{
		Filename: header.Filename,
		MimeType: detectContentType(header.Header.Get("Content-Type"), data),
		Data:     data,
	}, nil
}

func detectContentType(header string, data []byte) string {
	header = strings.TrimSpace(header)
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}
