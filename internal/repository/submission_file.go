package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// submissionFileColumns — столбцы таблицы submission_files для SELECT и RETURNING.
const submissionFileColumns = `id, submission_id, analysis_id, record_identifier,
	system_id, created_at, updated_at`

// SubmissionFileRepository — доступ к таблице submission_files.
type SubmissionFileRepository interface {
	// InsertMany сохраняет строки в одной транзакции и возвращает их
	// с присвоенными id и временными метками.
	InsertMany(ctx context.Context, files []model.SubmissionFile) ([]model.SubmissionFile, error)
	// GetBySubmissionID возвращает все строки submission в порядке вставки.
	GetBySubmissionID(ctx context.Context, submissionID int64) ([]model.SubmissionFile, error)
	// GetBySystemID возвращает строки, привязанные к записи реестра.
	GetBySystemID(ctx context.Context, systemID string) ([]model.SubmissionFile, error)
	// UpdateSystemID проставляет systemId строке по id.
	UpdateSystemID(ctx context.Context, id int64, systemID string) error
}

// submissionFileRepo — реализация SubmissionFileRepository через pgx.
type submissionFileRepo struct {
	db DBTX
	tx *TxRunner
}

// NewSubmissionFileRepository создаёт репозиторий submission_files.
func NewSubmissionFileRepository(db DBTX, tx *TxRunner) SubmissionFileRepository {
	return &submissionFileRepo{db: db, tx: tx}
}

func (r *submissionFileRepo) InsertMany(ctx context.Context, files []model.SubmissionFile) ([]model.SubmissionFile, error) {
	if len(files) == 0 {
		return []model.SubmissionFile{}, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO submission_files (submission_id, analysis_id, record_identifier, system_id)
		VALUES ($1, $2, $3, $4)
		RETURNING %s`, submissionFileColumns)

	saved := make([]model.SubmissionFile, 0, len(files))
	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		for _, f := range files {
			got, err := scanSubmissionFile(tx.QueryRow(ctx, query,
				f.SubmissionID, f.AnalysisID, f.RecordIdentifier, f.SystemID,
			))
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: analysis %s уже привязан", ErrConflict, f.AnalysisID)
				}
				return fmt.Errorf("ошибка сохранения связи analysis %s: %w", f.AnalysisID, err)
			}
			saved = append(saved, *got)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *submissionFileRepo) GetBySubmissionID(ctx context.Context, submissionID int64) ([]model.SubmissionFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM submission_files WHERE submission_id = $1 ORDER BY id`,
		submissionFileColumns)
	return r.list(ctx, query, submissionID)
}

func (r *submissionFileRepo) GetBySystemID(ctx context.Context, systemID string) ([]model.SubmissionFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM submission_files WHERE system_id = $1 ORDER BY id`,
		submissionFileColumns)
	return r.list(ctx, query, systemID)
}

func (r *submissionFileRepo) UpdateSystemID(ctx context.Context, id int64, systemID string) error {
	query := `
		UPDATE submission_files
		SET system_id = $2, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, systemID)
	if err != nil {
		return fmt.Errorf("ошибка обновления systemId: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// list выполняет SELECT и сканирует все строки.
func (r *submissionFileRepo) list(ctx context.Context, query string, arg any) ([]model.SubmissionFile, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения submission_files: %w", err)
	}
	defer rows.Close()

	result := make([]model.SubmissionFile, 0)
	for rows.Next() {
		f, err := scanSubmissionFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования submission_files: %w", err)
		}
		result = append(result, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// scanSubmissionFile читает одну строку в порядке submissionFileColumns.
func scanSubmissionFile(row pgx.Row) (*model.SubmissionFile, error) {
	f := &model.SubmissionFile{}
	err := row.Scan(
		&f.ID, &f.SubmissionID, &f.AnalysisID, &f.RecordIdentifier,
		&f.SystemID, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}
