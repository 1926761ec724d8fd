// submission.go — обработчики загрузки и редактирования данных:
// POST /submission/category/{categoryId}/data — новые записи (+ sequencing)
// PUT  /submission/category/{categoryId}/data — изменение сохранённых записей
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/goartstore/submission-module/internal/api/errors"
	"github.com/bigkaa/goartstore/submission-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/service"
	"github.com/bigkaa/goartstore/submission-module/internal/submission"
)

// Поля multipart-формы.
const (
	formFieldFiles              = "files"
	formFieldOrganization       = "organization"
	formFieldSequencingMetadata = "sequencingMetadata"
)

// maxFormFieldSize — предел размера текстового поля формы.
const maxFormFieldSize = 1 << 20

// anonymousUser — имя пользователя при выключенной аутентификации.
const anonymousUser = "anonymous"

var errFormFieldTooLarge = errors.New("текстовое поле формы превышает 1MB")

// uploadResponse — ответ на загрузку данных.
type uploadResponse struct {
	SubmissionID       *int64                `json:"submissionId"`
	Status             string                `json:"status"`
	SubmissionManifest []model.ManifestEntry `json:"submissionManifest"`
	BatchErrors        []model.BatchError    `json:"batchErrors"`
	InProcessEntities  []string              `json:"inProcessEntities"`
}

func newUploadResponse(res *service.UploadResult) uploadResponse {
	resp := uploadResponse{
		SubmissionID:       res.SubmissionID,
		Status:             string(res.Status),
		SubmissionManifest: res.Manifest,
		BatchErrors:        res.Errors,
		InProcessEntities:  res.InProcessEntities,
	}
	if resp.SubmissionManifest == nil {
		resp.SubmissionManifest = []model.ManifestEntry{}
	}
	if resp.BatchErrors == nil {
		resp.BatchErrors = []model.BatchError{}
	}
	if resp.InProcessEntities == nil {
		resp.InProcessEntities = []string{}
	}
	return resp
}

// UploadData — POST /submission/category/{categoryId}/data.
func (h *APIHandler) UploadData(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := intParam(w, r, "categoryId")
	if !ok {
		return
	}

	form, ok := h.readUploadForm(w, r)
	if !ok {
		return
	}
	defer form.cleanup()

	organization := form.fields[formFieldOrganization]
	if !h.authorizeOrganization(w, r, organization) {
		return
	}

	var sequencing []model.SequencingFileMetadata
	if raw := strings.TrimSpace(form.fields[formFieldSequencingMetadata]); raw != "" {
		var err error
		sequencing, err = submission.ParseSequencingMetadata(raw)
		if err != nil {
			apierrors.ValidationError(w, "sequencingMetadata: "+err.Error())
			return
		}
	}

	res, err := h.submissions.Upload(r.Context(), service.UploadParams{
		CategoryID:         int(categoryID),
		Organization:       organization,
		Username:           requestUsername(r),
		Files:              form.files,
		SequencingMetadata: sequencing,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUploadResponse(res))
}

// EditData — PUT /submission/category/{categoryId}/data.
func (h *APIHandler) EditData(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := intParam(w, r, "categoryId")
	if !ok {
		return
	}

	form, ok := h.readUploadForm(w, r)
	if !ok {
		return
	}
	defer form.cleanup()

	organization := form.fields[formFieldOrganization]
	if !h.authorizeOrganization(w, r, organization) {
		return
	}

	res, err := h.submissions.EditData(r.Context(), service.EditParams{
		CategoryID:   int(categoryID),
		Organization: organization,
		Username:     requestUsername(r),
		Files:        form.files,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUploadResponse(res))
}

// authorizeOrganization проверяет обязательность организации и право записи.
func (h *APIHandler) authorizeOrganization(w http.ResponseWriter, r *http.Request, organization string) bool {
	if organization == "" {
		apierrors.ValidationError(w, "Параметр organization обязателен")
		return false
	}
	if canWrite := middleware.WriteAccessFromContext(r.Context()); canWrite != nil && !canWrite(organization) {
		apierrors.Forbidden(w, fmt.Sprintf("Нет права записи в организацию %q", organization))
		return false
	}
	return true
}

// requestUsername — имя субъекта запроса для аудита в Registry.
func requestUsername(r *http.Request) string {
	if name := middleware.UsernameFromContext(r.Context()); name != "" {
		return name
	}
	return anonymousUser
}

// uploadForm — разобранная multipart-форма: файлы сохранены во временный каталог.
type uploadForm struct {
	files  []submission.UploadedFile
	fields map[string]string
}

// cleanup удаляет временные файлы, которые не удалил экстрактор.
func (f *uploadForm) cleanup() {
	for _, file := range f.files {
		_ = os.Remove(file.Path)
	}
}

// readUploadForm читает multipart-форму потоком, сохраняя части files
// во временный каталог. Размер тела ограничен лимитом загрузки.
func (h *APIHandler) readUploadForm(w http.ResponseWriter, r *http.Request) (*uploadForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.upload.Limit)

	form := &uploadForm{fields: make(map[string]string)}
	err := h.spoolMultipart(r, form)
	if err == nil {
		return form, true
	}
	form.cleanup()

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер запроса превышает лимит %d байт", maxErr.Limit))
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, errFormFieldTooLarge):
		apierrors.ValidationError(w, err.Error())
	default:
		h.logger.WarnContext(r.Context(), "Ошибка чтения multipart-формы",
			slog.String("error", err.Error()),
		)
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
	}
	return nil, false
}

func (h *APIHandler) spoolMultipart(r *http.Request, form *uploadForm) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFormFieldSize+1))
			part.Close()
			if err != nil {
				return err
			}
			if len(value) > maxFormFieldSize {
				return fmt.Errorf("%w: %s", errFormFieldTooLarge, part.FormName())
			}
			form.fields[part.FormName()] = string(value)
			continue
		}

		if part.FormName() != formFieldFiles {
			// Файлы в других полях не обрабатываются.
			_, _ = io.Copy(io.Discard, part)
			part.Close()
			continue
		}

		file, err := h.spoolPart(part)
		part.Close()
		if err != nil {
			return err
		}
		form.files = append(form.files, file)
	}
}

// spoolPart сохраняет часть формы во временный файл с уникальным именем.
func (h *APIHandler) spoolPart(part *multipart.Part) (submission.UploadedFile, error) {
	path := filepath.Join(h.upload.Dir, "sm-upload-"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return submission.UploadedFile{}, fmt.Errorf("создание временного файла: %w", err)
	}

	_, copyErr := io.Copy(f, part)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return submission.UploadedFile{}, err
	}

	return submission.UploadedFile{
		Path:         path,
		OriginalName: filepath.Base(part.FileName()),
	}, nil
}
