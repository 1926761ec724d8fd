// commit.go — фиксация submission и событие завершения commit от Registry.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/submission-module/internal/api/errors"
	"github.com/bigkaa/goartstore/submission-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/service"
)

// maxEventSize — предел размера тела события commit.
const maxEventSize = 32 << 20

// CommitSubmission — POST /submission/category/{categoryId}/commit/{submissionId}.
func (h *APIHandler) CommitSubmission(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := intParam(w, r, "categoryId")
	if !ok {
		return
	}
	submissionID, ok := intParam(w, r, "submissionId")
	if !ok {
		return
	}

	result, err := h.commits.Commit(r.Context(), service.CommitParams{
		CategoryID:   int(categoryID),
		SubmissionID: submissionID,
		Username:     requestUsername(r),
		CanWrite:     service.WriteAccess(middleware.WriteAccessFromContext(r.Context())),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FinishCommit — POST /events/commit. Вызывается Registry после commit.
func (h *APIHandler) FinishCommit(w http.ResponseWriter, r *http.Request) {
	var event model.CommitEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventSize)).Decode(&event); err != nil {
		apierrors.ValidationError(w, "Некорректное тело события: "+err.Error())
		return
	}
	if event.SubmissionID < 1 || event.CategoryID < 1 {
		apierrors.ValidationError(w, "Событие должно содержать categoryId и submissionId")
		return
	}

	if err := h.commits.OnFinishCommit(r.Context(), event); err != nil {
		// Индексация уже запущена, ошибка касается только связей файлов.
		h.logger.ErrorContext(r.Context(), "Ошибка обработки события commit",
			slog.Int64("submission_id", event.SubmissionID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Не удалось обновить связи файлов: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
