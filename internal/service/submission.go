// submission.go — оркестратор загрузки данных.
// Извлекает записи из файла, сверяет sequencing-метаданные, регистрирует
// submission в Registry и по одному анализу на sequencing-файл
// в Analysis Service, сохраняет связи файлов и собирает манифест.
// Все завершённые побочные эффекты записываются в журнал компенсаций
// и откатываются при отказе любого следующего шага.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
	"github.com/bigkaa/goartstore/submission-module/internal/repository"
	"github.com/bigkaa/goartstore/submission-module/internal/submission"
)

// dataPrefix — пространство имён полей записи в шаблоне payload.
const dataPrefix = "data."

// submittedReadsDataType — тип данных файлов sequencing-анализа.
const submittedReadsDataType = "Submitted Reads"

// tracerName — имя трассировщика сервисного слоя.
const tracerName = "github.com/bigkaa/goartstore/submission-module/internal/service"

// SubmissionConfig — параметры оркестратора.
type SubmissionConfig struct {
	// SequencingEnabled — регистрировать sequencing-файлы в Analysis Service
	SequencingEnabled bool
	// IdentifierColumn — колонка записи, по которой сопоставляются файлы
	IdentifierColumn string
	// ManifestConcurrency — максимум параллельных запросов при сборке манифеста
	ManifestConcurrency int
}

// SubmitParams — загрузка одного файла.
type SubmitParams struct {
	CategoryID   int
	EntityName   string
	Organization string
	Username     string
	File         submission.UploadedFile
	Schema       *model.Schema
	// SequencingMetadata — метаданные sequencing-файлов (может быть пустым)
	SequencingMetadata []model.SequencingFileMetadata
}

// SubmissionResult — итог загрузки одного файла.
// Бизнес-ошибки возвращаются здесь, а не через error.
type SubmissionResult struct {
	Success bool
	// SubmissionID — идентификатор submission в Registry. При откате
	// сохраняется, хотя submission уже удалена.
	SubmissionID *int64
	Status       model.CreateSubmissionStatus
	Manifest     []model.ManifestEntry
	Errors       []model.BatchError
}

// UploadParams — запрос на загрузку набора файлов в категорию.
type UploadParams struct {
	CategoryID         int
	Organization       string
	Username           string
	Files              []submission.UploadedFile
	SequencingMetadata []model.SequencingFileMetadata
}

// UploadResult — итог загрузки набора файлов.
type UploadResult struct {
	SubmissionID      *int64
	Status            model.CreateSubmissionStatus
	Manifest          []model.ManifestEntry
	Errors            []model.BatchError
	InProcessEntities []string
}

// EditParams — загрузка файлов с изменениями уже сохранённых записей.
type EditParams struct {
	CategoryID   int
	Organization string
	Username     string
	Files        []submission.UploadedFile
}

// SubmissionService — оркестратор загрузки.
type SubmissionService struct {
	registry     Registry
	analysis     AnalysisService
	files        repository.SubmissionFileRepository
	dictionaries *DictionaryCache
	templates    *submission.Templates
	cfg          SubmissionConfig
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewSubmissionService создаёт оркестратор.
// analysis может быть nil, если регистрация sequencing-файлов выключена.
func NewSubmissionService(
	registry Registry,
	analysis AnalysisService,
	files repository.SubmissionFileRepository,
	dictionaries *DictionaryCache,
	templates *submission.Templates,
	cfg SubmissionConfig,
	logger *slog.Logger,
) *SubmissionService {
	if cfg.ManifestConcurrency < 1 {
		cfg.ManifestConcurrency = 1
	}
	return &SubmissionService{
		registry:     registry,
		analysis:     analysis,
		files:        files,
		dictionaries: dictionaries,
		templates:    templates,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "submission_service")),
		tracer:       otel.Tracer(tracerName),
	}
}

// Upload обрабатывает набор файлов одной категории.
// Каждый файл сопоставляется с сущностью словаря по имени, проходит
// предварительную проверку и оркестратор. Ошибка одного файла не
// прерывает обработку остальных.
//
// ErrBadRequest — нет файлов, словарь категории не найден или
// sequencing-метаданные переданы для нескольких файлов.
func (s *SubmissionService) Upload(ctx context.Context, params UploadParams) (*UploadResult, error) {
	if len(params.Files) == 0 {
		return nil, fmt.Errorf("%w: параметр files отсутствует или пуст", ErrBadRequest)
	}
	if len(params.SequencingMetadata) > 0 && len(params.Files) > 1 {
		return nil, fmt.Errorf("%w: sequencing-метаданные допускаются только для одного файла", ErrBadRequest)
	}

	dict, err := s.dictionaries.Get(ctx, params.CategoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: словарь категории %d не найден", ErrBadRequest, params.CategoryID)
		}
		return nil, fmt.Errorf("получение словаря категории %d: %w", params.CategoryID, err)
	}

	s.logger.Info("Запрос на загрузку",
		slog.Int("category_id", params.CategoryID),
		slog.String("organization", params.Organization),
		slog.Int("files", len(params.Files)),
	)

	result := &UploadResult{
		Errors:   []model.BatchError{},
		Manifest: []model.ManifestEntry{},
	}
	for _, file := range params.Files {
		entityName := submission.EntityNameOf(file.OriginalName)
		schema := dict.SchemaByEntity(entityName)
		if entityName == "" || schema == nil {
			result.Errors = append(result.Errors, model.BatchError{
				Type:      model.BatchErrorInvalidFileName,
				Message:   "Недопустимое имя сущности для загрузки",
				BatchName: file.OriginalName,
			})
			continue
		}

		_, batchErr, err := submission.PrevalidateNewFile(file, schema)
		if err != nil {
			return nil, err
		}
		if batchErr != nil {
			result.Errors = append(result.Errors, *batchErr)
			continue
		}

		res, err := s.Submit(ctx, SubmitParams{
			CategoryID:         params.CategoryID,
			EntityName:         entityName,
			Organization:       params.Organization,
			Username:           params.Username,
			File:               file,
			Schema:             schema,
			SequencingMetadata: params.SequencingMetadata,
		})
		if err != nil {
			return nil, err
		}
		if !res.Success {
			result.Errors = append(result.Errors, res.Errors...)
			continue
		}
		result.SubmissionID = res.SubmissionID
		result.Manifest = append(result.Manifest, res.Manifest...)
		result.InProcessEntities = append(result.InProcessEntities, entityName)
	}

	result.Status = model.StatusProcessing
	if len(result.InProcessEntities) == 0 {
		result.Status = model.StatusInvalidSubmission
	}
	submissionsTotal.WithLabelValues(string(result.Status)).Inc()

	s.logger.Info("Загрузка обработана",
		slog.String("status", string(result.Status)),
		slog.Int("batch_errors", len(result.Errors)),
	)
	return result, nil
}

// Submit загружает один файл:
//  1. Извлечение записей
//  2. Сверка sequencing-метаданных (ошибка — отказ до обращения к Registry)
//  3. Подготовка payload для каждого сопоставленного sequencing-файла
//  4. Регистрация записей в Registry
//  5. Регистрация анализов в Analysis Service, последовательно
//  6. Сохранение связей файлов
//  7. Сборка манифеста
//
// Ошибка любого шага после 4 откатывает все выполненные шаги.
// Сбой сохранения связей возвращается как *PersistenceError.
func (s *SubmissionService) Submit(ctx context.Context, params SubmitParams) (*SubmissionResult, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Submit", trace.WithAttributes(
		attribute.Int("category_id", params.CategoryID),
		attribute.String("entity", params.EntityName),
		attribute.String("organization", params.Organization),
	))
	defer span.End()

	batchName := params.File.OriginalName

	records, err := s.extract(ctx, params.File, params.Schema)
	if err != nil {
		s.logger.Warn("Ошибка разбора файла",
			slog.String("file", batchName),
			slog.String("error", err.Error()),
		)
		return rejected(nil, extractionError(batchName, err)), nil
	}

	var validFiles []model.SequencingFileMetadata
	if len(params.SequencingMetadata) > 0 {
		reconciled := submission.ReconcileSequencing(params.SequencingMetadata, records, batchName, s.cfg.IdentifierColumn)
		if len(reconciled.Errors) > 0 {
			s.logger.Info("Ошибка сверки sequencing-метаданных",
				slog.String("file", batchName),
				slog.Int("errors", len(reconciled.Errors)),
			)
			return rejected(nil, reconciled.Errors...), nil
		}
		validFiles = reconciled.ValidFiles
	}

	pending, err := s.buildAnalysisPayloads(params.Organization, validFiles, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Ошибка подготовки payload анализа",
			slog.String("file", batchName),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	resp, err := s.registry.Submit(ctx, registryclient.SubmitRequest{
		CategoryID:   params.CategoryID,
		EntityName:   params.EntityName,
		Organization: params.Organization,
		Username:     params.Username,
		Records:      records,
	})
	if err != nil {
		var apiErr *registryclient.APIError
		if errors.As(err, &apiErr) {
			return rejected(nil, model.BatchError{
				Type:      model.BatchErrorIncorrectSection,
				Message:   apiErr.Message,
				BatchName: batchName,
			}), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "registry submit")
		return nil, fmt.Errorf("регистрация записей в Registry: %w", err)
	}
	if resp.Status != model.StatusProcessing || resp.SubmissionID == nil {
		return rejected(nil, model.BatchError{
			Type:      model.BatchErrorIncorrectSection,
			Message:   resp.Description,
			BatchName: batchName,
		}), nil
	}

	submissionID := *resp.SubmissionID
	span.SetAttributes(attribute.Int64("submission_id", submissionID))

	if len(pending) == 0 {
		return &SubmissionResult{
			Success:      true,
			SubmissionID: &submissionID,
			Status:       model.StatusProcessing,
			Manifest:     []model.ManifestEntry{},
		}, nil
	}

	comp := newCompensationLog(s.logger)
	comp.push("registry submission "+strconv.FormatInt(submissionID, 10), func(ctx context.Context) error {
		return s.registry.DeleteActiveSubmission(ctx, submissionID, params.Username)
	})

	mappings, analysisErrors := s.submitAnalyses(ctx, params.Organization, batchName, submissionID, pending, comp)
	if len(analysisErrors) > 0 {
		s.logger.Warn("Регистрация анализов не удалась, откат submission",
			slog.Int64("submission_id", submissionID),
			slog.Int("failed", len(analysisErrors)),
		)
		span.SetStatus(codes.Error, "analysis submit")
		if uerr := comp.unwind(ctx); uerr != nil {
			span.RecordError(uerr)
		}
		return rejected(&submissionID, analysisErrors...), nil
	}

	if _, err := s.files.InsertMany(ctx, mappings); err != nil {
		s.logger.Error("Ошибка сохранения связей файлов, откат submission",
			slog.Int64("submission_id", submissionID),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist mappings")
		if uerr := comp.unwind(ctx); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return nil, &PersistenceError{SubmissionID: submissionID, Err: err}
	}

	analysisIDs := make([]string, len(mappings))
	for i, m := range mappings {
		analysisIDs[i] = m.AnalysisID
	}
	manifest := s.buildManifest(ctx, params.Organization, analysisIDs)

	s.logger.Info("Файл загружен",
		slog.Int64("submission_id", submissionID),
		slog.String("file", batchName),
		slog.Int("analyses", len(mappings)),
	)
	return &SubmissionResult{
		Success:      true,
		SubmissionID: &submissionID,
		Status:       model.StatusProcessing,
		Manifest:     manifest,
	}, nil
}

// EditData загружает файлы с изменениями сохранённых записей.
// Файлы проверяются вариантом предварительной проверки с колонкой systemId;
// sequencing-метаданные не поддерживаются.
func (s *SubmissionService) EditData(ctx context.Context, params EditParams) (*UploadResult, error) {
	if len(params.Files) == 0 {
		return nil, fmt.Errorf("%w: параметр files отсутствует или пуст", ErrBadRequest)
	}

	dict, err := s.dictionaries.Get(ctx, params.CategoryID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: словарь категории %d не найден", ErrBadRequest, params.CategoryID)
		}
		return nil, fmt.Errorf("получение словаря категории %d: %w", params.CategoryID, err)
	}

	result := &UploadResult{
		Errors:   []model.BatchError{},
		Manifest: []model.ManifestEntry{},
	}
	for _, file := range params.Files {
		entityName := submission.EntityNameOf(file.OriginalName)
		schema := dict.SchemaByEntity(entityName)
		if entityName == "" || schema == nil {
			result.Errors = append(result.Errors, model.BatchError{
				Type:      model.BatchErrorInvalidFileName,
				Message:   "Недопустимое имя сущности для загрузки",
				BatchName: file.OriginalName,
			})
			continue
		}

		_, batchErr, err := submission.PrevalidateEditFile(file, schema)
		if err != nil {
			return nil, err
		}
		if batchErr != nil {
			result.Errors = append(result.Errors, *batchErr)
			continue
		}

		records, err := s.extract(ctx, file, schema)
		if err != nil {
			result.Errors = append(result.Errors, extractionError(file.OriginalName, err))
			continue
		}

		resp, err := s.registry.EditData(ctx, registryclient.SubmitRequest{
			CategoryID:   params.CategoryID,
			EntityName:   entityName,
			Organization: params.Organization,
			Username:     params.Username,
			Records:      records,
		})
		if err != nil {
			var apiErr *registryclient.APIError
			if !errors.As(err, &apiErr) {
				return nil, fmt.Errorf("изменение записей в Registry: %w", err)
			}
			result.Errors = append(result.Errors, model.BatchError{
				Type:      model.BatchErrorIncorrectSection,
				Message:   apiErr.Message,
				BatchName: file.OriginalName,
			})
			continue
		}
		if resp.Status != model.StatusProcessing || resp.SubmissionID == nil {
			result.Errors = append(result.Errors, model.BatchError{
				Type:      model.BatchErrorIncorrectSection,
				Message:   resp.Description,
				BatchName: file.OriginalName,
			})
			continue
		}
		result.SubmissionID = resp.SubmissionID
		result.InProcessEntities = append(result.InProcessEntities, entityName)
	}

	result.Status = model.StatusProcessing
	if len(result.InProcessEntities) == 0 {
		result.Status = model.StatusInvalidSubmission
	}
	submissionsTotal.WithLabelValues(string(result.Status)).Inc()
	return result, nil
}

// --- Шаги оркестратора ---

func (s *SubmissionService) extract(ctx context.Context, file submission.UploadedFile, schema *model.Schema) ([]model.Record, error) {
	_, span := s.tracer.Start(ctx, "submission.Extract")
	defer span.End()

	records, err := submission.Extract(file, schema)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

// pendingAnalysis — подготовленная регистрация анализа для одного sequencing-файла.
type pendingAnalysis struct {
	identifier string
	fileName   string
	payload    map[string]any
}

// buildAnalysisPayloads строит payload анализа для каждого сопоставленного
// файла: поля записи с префиксом data., организация и метаданные файла.
// Файл без записи с тем же идентификатором пропускается.
func (s *SubmissionService) buildAnalysisPayloads(
	organization string,
	files []model.SequencingFileMetadata,
	records []model.Record,
) ([]pendingAnalysis, error) {
	if !s.cfg.SequencingEnabled || s.cfg.IdentifierColumn == "" || len(files) == 0 {
		return nil, nil
	}

	pending := make([]pendingAnalysis, 0, len(files))
	for _, f := range files {
		record := findRecord(records, s.cfg.IdentifierColumn, f.Identifier)
		if record == nil {
			continue
		}

		values := submission.PrefixKeys(record, dataPrefix)
		values["organization"] = organization
		payload, err := s.templates.Fill(values, submission.SequencingTemplate)
		if err != nil {
			return nil, err
		}
		payload["files"] = []map[string]any{{
			"fileName":   f.FileName,
			"fileSize":   f.FileSize,
			"fileMd5sum": f.FileMd5sum,
			"fileAccess": f.FileAccess,
			"fileType":   f.FileType,
			"dataType":   submittedReadsDataType,
		}}
		pending = append(pending, pendingAnalysis{
			identifier: f.Identifier,
			fileName:   f.FileName,
			payload:    payload,
		})
	}
	return pending, nil
}

// submitAnalyses регистрирует анализы по одному, в порядке входных данных.
// Выполняются все попытки; успешные анализы добавляются в журнал компенсаций.
// Возвращает связи файлов для успешных анализов и ошибки неудачных.
func (s *SubmissionService) submitAnalyses(
	ctx context.Context,
	organization, batchName string,
	submissionID int64,
	pending []pendingAnalysis,
	comp *compensationLog,
) ([]model.SubmissionFile, []model.BatchError) {
	ctx, span := s.tracer.Start(ctx, "analysis.SubmitAll", trace.WithAttributes(
		attribute.Int("payloads", len(pending)),
	))
	defer span.End()

	mappings := make([]model.SubmissionFile, 0, len(pending))
	var failures []model.BatchError
	for _, p := range pending {
		res, err := s.analysis.Submit(ctx, organization, p.payload)
		if err != nil {
			analysisSubmissionsTotal.WithLabelValues("failure").Inc()
			s.logger.Warn("Ошибка регистрации анализа",
				slog.Int64("submission_id", submissionID),
				slog.String("sequencing_file", p.fileName),
				slog.String("error", err.Error()),
			)
			failures = append(failures, model.BatchError{
				Type:      model.BatchErrorIncorrectSection,
				Message:   err.Error(),
				BatchName: batchName,
			})
			continue
		}

		analysisSubmissionsTotal.WithLabelValues("success").Inc()
		analysisID := res.AnalysisID
		comp.push("analysis "+analysisID, func(ctx context.Context) error {
			return s.analysis.Suppress(ctx, organization, analysisID)
		})
		s.logger.Info("Анализ зарегистрирован",
			slog.Int64("submission_id", submissionID),
			slog.String("analysis_id", analysisID),
			slog.String("status", res.Status),
		)
		mappings = append(mappings, model.SubmissionFile{
			SubmissionID:     submissionID,
			AnalysisID:       analysisID,
			RecordIdentifier: p.identifier,
		})
	}
	return mappings, failures
}

// buildManifest запрашивает файлы каждого анализа параллельно и
// собирает плоский манифест в порядке анализов. Анализ, файлы которого
// получить не удалось, пропускается с записью в лог: submission уже
// сохранена и откату не подлежит.
func (s *SubmissionService) buildManifest(ctx context.Context, organization string, analysisIDs []string) []model.ManifestEntry {
	ctx, span := s.tracer.Start(ctx, "analysis.BuildManifest", trace.WithAttributes(
		attribute.Int("analyses", len(analysisIDs)),
	))
	defer span.End()

	perAnalysis := make([][]model.ManifestEntry, len(analysisIDs))
	var g errgroup.Group
	g.SetLimit(s.cfg.ManifestConcurrency)
	for i, id := range analysisIDs {
		g.Go(func() error {
			files, err := s.analysis.ListFiles(ctx, organization, id)
			if err != nil {
				s.logger.Error("Ошибка получения файлов анализа для манифеста",
					slog.String("analysis_id", id),
					slog.String("error", err.Error()),
				)
				return err
			}
			entries := make([]model.ManifestEntry, 0, len(files))
			for _, f := range files {
				entries = append(entries, model.ManifestEntry{
					ObjectID: f.ObjectID,
					FileName: f.FileName,
					MD5Sum:   f.FileMd5sum,
				})
			}
			perAnalysis[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
	}

	manifest := make([]model.ManifestEntry, 0, len(analysisIDs))
	for _, entries := range perAnalysis {
		manifest = append(manifest, entries...)
	}
	return manifest
}

// --- Вспомогательные функции ---

// findRecord возвращает первую запись, у которой column == value.
func findRecord(records []model.Record, column, value string) model.Record {
	for _, r := range records {
		if r[column] == value {
			return r
		}
	}
	return nil
}

// extractionError преобразует ошибку извлечения записей в ошибку батча.
func extractionError(batchName string, err error) model.BatchError {
	if errors.Is(err, submission.ErrUnsupportedExtension) {
		return model.BatchError{
			Type:      model.BatchErrorInvalidFileExtension,
			Message:   fmt.Sprintf("Недопустимое расширение файла %q", submission.ExtensionOf(batchName)),
			BatchName: batchName,
		}
	}
	return model.BatchError{
		Type:      model.BatchErrorIncorrectSection,
		Message:   err.Error(),
		BatchName: batchName,
	}
}

// rejected — отрицательный результат загрузки файла.
func rejected(submissionID *int64, errs ...model.BatchError) *SubmissionResult {
	return &SubmissionResult{
		Success:      false,
		SubmissionID: submissionID,
		Status:       model.StatusInvalidSubmission,
		Errors:       errs,
	}
}
