// files.go — файлы submission, зарегистрированные в Analysis Service:
// метаданные для просмотра submission, обогащение сохранённых записей
// и публикация анализов перед commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/submission-module/internal/analysisclient"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
	"github.com/bigkaa/goartstore/submission-module/internal/repository"
)

// SubmissionDetails — submission Registry с файлами анализов.
type SubmissionDetails struct {
	Submission *model.Submission
	Files      []model.FileMetadata
}

// PublishResult — итог публикации анализов submission.
type PublishResult struct {
	Published []string
	Failed    []string
}

// FileService — операции над файлами submission.
type FileService struct {
	registry    Registry
	analysis    AnalysisService
	files       repository.SubmissionFileRepository
	concurrency int
	logger      *slog.Logger
}

// NewFileService создаёт FileService.
// analysis может быть nil — тогда файлы анализов не запрашиваются.
func NewFileService(
	registry Registry,
	analysis AnalysisService,
	files repository.SubmissionFileRepository,
	concurrency int,
	logger *slog.Logger,
) *FileService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &FileService{
		registry:    registry,
		analysis:    analysis,
		files:       files,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "file_service")),
	}
}

// GetSubmission возвращает submission с метаданными её файлов.
// Файл считается загруженным, если анализ опубликован.
func (s *FileService) GetSubmission(ctx context.Context, submissionID int64) (*SubmissionDetails, error) {
	sub, err := s.registry.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, registryclient.ErrNotFound) {
			return nil, fmt.Errorf("submission %d: %w", submissionID, ErrNotFound)
		}
		return nil, fmt.Errorf("получение submission %d: %w", submissionID, err)
	}

	files, err := s.fileMetadata(ctx, sub.Organization, submissionID)
	if err != nil {
		return nil, err
	}
	return &SubmissionDetails{Submission: sub, Files: files}, nil
}

// fileMetadata запрашивает анализы всех связей submission параллельно.
// Для каждого анализа берётся первый файл; анализ без файлов пропускается.
func (s *FileService) fileMetadata(ctx context.Context, organization string, submissionID int64) ([]model.FileMetadata, error) {
	mappings, err := s.files.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("связи файлов submission %d: %w", submissionID, err)
	}
	if len(mappings) == 0 || s.analysis == nil {
		return []model.FileMetadata{}, nil
	}

	analyses := make([]*analysisclient.Analysis, len(mappings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, m := range mappings {
		g.Go(func() error {
			a, err := s.analysis.GetAnalysis(gctx, organization, m.AnalysisID)
			if err != nil {
				return fmt.Errorf("анализ %s: %w", m.AnalysisID, err)
			}
			analyses[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]model.FileMetadata, 0, len(analyses))
	for _, a := range analyses {
		if len(a.Files) == 0 {
			continue
		}
		f := a.Files[0]
		result = append(result, model.FileMetadata{
			ManifestEntry: model.ManifestEntry{
				ObjectID: f.ObjectID,
				FileName: f.FileName,
				MD5Sum:   f.FileMd5sum,
			},
			IsUploaded: a.AnalysisState == analysisclient.AnalysisStatePublished,
		})
	}
	return result, nil
}

// SubmittedDataBySystemID возвращает сохранённую запись Registry.
// Если запись связана с анализом, в неё добавляется поле files —
// файлы анализа в формате манифеста.
func (s *FileService) SubmittedDataBySystemID(ctx context.Context, categoryID int, systemID string) (map[string]any, error) {
	record, err := s.registry.GetSubmittedData(ctx, categoryID, systemID)
	if err != nil {
		if errors.Is(err, registryclient.ErrNotFound) {
			return nil, fmt.Errorf("запись %s: %w", systemID, ErrNotFound)
		}
		return nil, fmt.Errorf("получение записи %s: %w", systemID, err)
	}
	if s.analysis == nil {
		return record, nil
	}

	mappings, err := s.files.GetBySystemID(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("связи файлов записи %s: %w", systemID, err)
	}
	if len(mappings) == 0 {
		return record, nil
	}

	organization, _ := record["organization"].(string)
	files, err := s.analysis.ListFiles(ctx, organization, mappings[0].AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("файлы анализа %s: %w", mappings[0].AnalysisID, err)
	}

	manifest := make([]model.ManifestEntry, 0, len(files))
	for _, f := range files {
		manifest = append(manifest, model.ManifestEntry{
			ObjectID: f.ObjectID,
			FileName: f.FileName,
			MD5Sum:   f.FileMd5sum,
		})
	}
	record["files"] = manifest
	return record, nil
}

// PublishMapped публикует все анализы, связанные с submission.
// Ошибка публикации одного анализа не прерывает остальные.
func (s *FileService) PublishMapped(ctx context.Context, organization string, submissionID int64) (*PublishResult, error) {
	mappings, err := s.files.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("связи файлов submission %d: %w", submissionID, err)
	}

	result := &PublishResult{}
	if len(mappings) == 0 {
		return result, nil
	}
	if s.analysis == nil {
		return nil, fmt.Errorf("submission %d связана с анализами, но Analysis Service не настроен", submissionID)
	}

	for _, m := range mappings {
		if err := s.analysis.Publish(ctx, organization, m.AnalysisID); err != nil {
			s.logger.Warn("Ошибка публикации анализа",
				slog.Int64("submission_id", submissionID),
				slog.String("analysis_id", m.AnalysisID),
				slog.String("error", err.Error()),
			)
			result.Failed = append(result.Failed, m.AnalysisID)
			continue
		}
		result.Published = append(result.Published, m.AnalysisID)
	}

	s.logger.Info("Публикация анализов submission",
		slog.Int64("submission_id", submissionID),
		slog.Int("published", len(result.Published)),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}
