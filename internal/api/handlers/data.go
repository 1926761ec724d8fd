// data.go — чтение submission и сохранённых записей:
// GET /submission/{submissionId} — submission Registry + файлы анализов
// GET /data/category/{categoryId}/id/{systemId} — запись + файлы
package handlers

import (
	"maps"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/submission-module/internal/api/errors"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// GetSubmission — GET /submission/{submissionId}.
func (h *APIHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := intParam(w, r, "submissionId")
	if !ok {
		return
	}

	details, err := h.files.GetSubmission(r.Context(), submissionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body := make(map[string]any, len(details.Submission.Raw)+1)
	maps.Copy(body, details.Submission.Raw)
	files := details.Files
	if files == nil {
		files = []model.FileMetadata{}
	}
	body["files"] = files
	writeJSON(w, http.StatusOK, body)
}

// GetSubmittedData — GET /data/category/{categoryId}/id/{systemId}.
func (h *APIHandler) GetSubmittedData(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := intParam(w, r, "categoryId")
	if !ok {
		return
	}
	systemID := chi.URLParam(r, "systemId")
	if systemID == "" {
		apierrors.ValidationError(w, "Параметр systemId обязателен")
		return
	}

	record, err := h.files.SubmittedDataBySystemID(r.Context(), int(categoryID), systemID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
