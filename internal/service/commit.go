// commit.go — фиксация submission и обработка события завершения commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
	"github.com/bigkaa/goartstore/submission-module/internal/repository"
)

// WriteAccess сообщает, может ли текущий пользователь изменять данные
// организации. nil — авторизация отключена.
type WriteAccess func(organization string) bool

// CommitParams — запрос на фиксацию submission.
type CommitParams struct {
	CategoryID   int
	SubmissionID int64
	Username     string
	CanWrite     WriteAccess
}

// CommitConfig — параметры обработки commit.
type CommitConfig struct {
	SequencingEnabled bool
	IdentifierColumn  string
	IndexingEnabled   bool
}

// CommitService — фиксация submission и пост-обработка commit.
type CommitService struct {
	registry Registry
	files    *FileService
	repo     repository.SubmissionFileRepository
	indexer  Indexer
	cfg      CommitConfig
	logger   *slog.Logger
}

// NewCommitService создаёт CommitService.
// indexer может быть nil, если индексация выключена.
func NewCommitService(
	registry Registry,
	files *FileService,
	repo repository.SubmissionFileRepository,
	indexer Indexer,
	cfg CommitConfig,
	logger *slog.Logger,
) *CommitService {
	return &CommitService{
		registry: registry,
		files:    files,
		repo:     repo,
		indexer:  indexer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "commit_service")),
	}
}

// Commit фиксирует submission:
//  1. Submission существует (ErrNotFound)
//  2. Пользователь может писать в организацию submission (ErrForbidden)
//  3. Статус submission — VALID (ErrConflict)
//  4. Все связанные анализы опубликованы (ErrConflict со списком неудачных)
//  5. Commit в Registry
func (s *CommitService) Commit(ctx context.Context, params CommitParams) (map[string]any, error) {
	s.logger.Info("Запрос на commit submission",
		slog.Int("category_id", params.CategoryID),
		slog.Int64("submission_id", params.SubmissionID),
	)

	sub, err := s.registry.GetSubmission(ctx, params.SubmissionID)
	if err != nil {
		if errors.Is(err, registryclient.ErrNotFound) {
			return nil, fmt.Errorf("submission %d: %w", params.SubmissionID, ErrNotFound)
		}
		return nil, fmt.Errorf("получение submission %d: %w", params.SubmissionID, err)
	}

	if params.CanWrite != nil && !params.CanWrite(sub.Organization) {
		return nil, fmt.Errorf("%w: нет права записи в организацию %q", ErrForbidden, sub.Organization)
	}

	if sub.Status != model.SubmissionStatusValid {
		return nil, fmt.Errorf("%w: submission %d в статусе %s, commit возможен только из VALID",
			ErrConflict, params.SubmissionID, sub.Status)
	}

	published, err := s.files.PublishMapped(ctx, sub.Organization, params.SubmissionID)
	if err != nil {
		return nil, err
	}
	if len(published.Failed) > 0 {
		return nil, fmt.Errorf("%w: файлы анализов %s отсутствуют в хранилище объектов",
			ErrConflict, strings.Join(published.Failed, ", "))
	}

	result, err := s.registry.CommitSubmission(ctx, params.CategoryID, params.SubmissionID, params.Username)
	if err != nil {
		return nil, fmt.Errorf("commit submission %d: %w", params.SubmissionID, err)
	}
	return result, nil
}

// OnFinishCommit обрабатывает событие завершения commit от Registry:
//   - проставляет systemId связям файлов для вставленных записей
//     (если включена регистрация sequencing-файлов);
//   - передаёт все затронутые записи в индексатор (в фоне).
func (s *CommitService) OnFinishCommit(ctx context.Context, event model.CommitEvent) error {
	s.logger.Info("Событие завершения commit",
		slog.Int("category_id", event.CategoryID),
		slog.Int64("submission_id", event.SubmissionID),
		slog.Int("inserts", len(event.Data.Inserts)),
		slog.Int("updates", len(event.Data.Updates)),
		slog.Int("deletes", len(event.Data.Deletes)),
	)

	err := s.updateSystemIDs(ctx, event.SubmissionID, event.Data.Inserts)

	if s.cfg.IndexingEnabled && s.indexer != nil {
		records := make([]model.SubmittedRecord, 0,
			len(event.Data.Inserts)+len(event.Data.Updates)+len(event.Data.Deletes))
		records = append(records, event.Data.Inserts...)
		records = append(records, event.Data.Updates...)
		records = append(records, event.Data.Deletes...)
		s.indexer.Enqueue(ctx, event.CategoryID, event.Organization, records)
	}

	return err
}

// updateSystemIDs сопоставляет вставленные записи со связями файлов
// по колонке-идентификатору. Записи без связи пропускаются.
func (s *CommitService) updateSystemIDs(ctx context.Context, submissionID int64, inserts []model.SubmittedRecord) error {
	if !s.cfg.SequencingEnabled || s.cfg.IdentifierColumn == "" || len(inserts) == 0 {
		return nil
	}

	mappings, err := s.repo.GetBySubmissionID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("связи файлов submission %d: %w", submissionID, err)
	}
	if len(mappings) == 0 {
		s.logger.Debug("У submission нет связанных файлов",
			slog.Int64("submission_id", submissionID),
		)
		return nil
	}

	byIdentifier := make(map[string]model.SubmissionFile, len(mappings))
	for _, m := range mappings {
		byIdentifier[m.RecordIdentifier] = m
	}

	var errs []error
	updated := 0
	for _, rec := range inserts {
		identifier := stringValue(rec.Data[s.cfg.IdentifierColumn])
		m, ok := byIdentifier[identifier]
		if identifier == "" || !ok {
			continue
		}
		if err := s.repo.UpdateSystemID(ctx, m.ID, rec.SystemID); err != nil {
			errs = append(errs, fmt.Errorf("связь %d (systemId %s): %w", m.ID, rec.SystemID, err))
			continue
		}
		updated++
	}

	s.logger.Info("systemId связей файлов обновлены",
		slog.Int64("submission_id", submissionID),
		slog.Int("updated", updated),
	)
	return errors.Join(errs...)
}

// stringValue приводит значение поля записи к строке.
func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
