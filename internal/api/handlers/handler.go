// handler.go — основной обработчик API Submission Module.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/submission-module/internal/analysisclient"
	apierrors "github.com/bigkaa/goartstore/submission-module/internal/api/errors"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
	"github.com/bigkaa/goartstore/submission-module/internal/service"
)

// Submissions — загрузка и редактирование данных.
type Submissions interface {
	Upload(ctx context.Context, params service.UploadParams) (*service.UploadResult, error)
	EditData(ctx context.Context, params service.EditParams) (*service.UploadResult, error)
}

// Commits — фиксация submission и событие завершения commit.
type Commits interface {
	Commit(ctx context.Context, params service.CommitParams) (map[string]any, error)
	OnFinishCommit(ctx context.Context, event model.CommitEvent) error
}

// Files — чтение submission и сохранённых записей с файлами.
type Files interface {
	GetSubmission(ctx context.Context, submissionID int64) (*service.SubmissionDetails, error)
	SubmittedDataBySystemID(ctx context.Context, categoryID int, systemID string) (map[string]any, error)
}

// UploadConfig — параметры приёма multipart-загрузок.
type UploadConfig struct {
	// Limit — максимальный размер тела запроса в байтах
	Limit int64
	// Dir — каталог временных файлов
	Dir string
}

// APIHandler — основной обработчик API Submission Module.
type APIHandler struct {
	health      *HealthHandler
	submissions Submissions
	commits     Commits
	files       Files
	upload      UploadConfig
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	submissions Submissions,
	commits Commits,
	files Files,
	upload UploadConfig,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		submissions: submissions,
		commits:     commits,
		files:       files,
		upload:      upload,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		persistErr  *service.PersistenceError
		registryErr *registryclient.APIError
		analysisErr *analysisclient.APIError
	)

	switch {
	case errors.Is(err, service.ErrBadRequest):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.As(err, &persistErr):
		h.logger.ErrorContext(r.Context(), "Связи файлов не сохранены, изменения откачены",
			slog.Int64("submission_id", persistErr.SubmissionID),
			slog.String("error", persistErr.Err.Error()),
		)
		apierrors.InternalError(w, fmt.Sprintf(
			"Не удалось сохранить связи файлов submission %d, изменения откачены", persistErr.SubmissionID))
	case errors.As(err, &registryErr):
		writeUpstreamError(w, registryErr.StatusCode, registryErr.Error())
	case errors.As(err, &analysisErr):
		writeUpstreamError(w, analysisErr.StatusCode, analysisErr.Error())
	default:
		h.logger.ErrorContext(r.Context(), "Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// writeUpstreamError передаёт клиентские ошибки внешних сервисов как есть,
// серверные — как 502.
func writeUpstreamError(w http.ResponseWriter, status int, message string) {
	if status >= 400 && status < 500 {
		apierrors.WriteError(w, status, upstreamCode(status), message)
		return
	}
	apierrors.UpstreamError(w, message)
}

func upstreamCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return apierrors.CodeNotFound
	case http.StatusUnauthorized:
		return apierrors.CodeUnauthorized
	case http.StatusForbidden:
		return apierrors.CodeForbidden
	case http.StatusConflict:
		return apierrors.CodeConflict
	default:
		return apierrors.CodeValidationError
	}
}

// intParam читает целочисленный параметр пути.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %q", name, raw))
		return 0, false
	}
	return v, true
}
