// ports.go — интерфейсы внешних систем, с которыми работает сервисный слой.
package service

import (
	"context"

	"github.com/bigkaa/goartstore/submission-module/internal/analysisclient"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
)

// Registry — операции Submission Registry.
// Реализуется *registryclient.Client.
type Registry interface {
	GetDictionary(ctx context.Context, categoryID int) (*model.Dictionary, error)
	Submit(ctx context.Context, req registryclient.SubmitRequest) (*registryclient.SubmitResponse, error)
	EditData(ctx context.Context, req registryclient.SubmitRequest) (*registryclient.SubmitResponse, error)
	DeleteActiveSubmission(ctx context.Context, submissionID int64, username string) error
	CommitSubmission(ctx context.Context, categoryID int, submissionID int64, username string) (map[string]any, error)
	GetSubmission(ctx context.Context, submissionID int64) (*model.Submission, error)
	GetSubmittedData(ctx context.Context, categoryID int, systemID string) (map[string]any, error)
}

// AnalysisService — операции Analysis Service.
// Реализуется *analysisclient.Client.
type AnalysisService interface {
	Submit(ctx context.Context, organization string, payload map[string]any) (*analysisclient.SubmitResult, error)
	GetAnalysis(ctx context.Context, organization, analysisID string) (*analysisclient.Analysis, error)
	ListFiles(ctx context.Context, organization, analysisID string) ([]analysisclient.AnalysisFile, error)
	Publish(ctx context.Context, organization, analysisID string) error
	Suppress(ctx context.Context, organization, analysisID string) error
}

// Indexer — фоновая отправка зафиксированных записей в индексатор.
// Реализуется *indexer.Indexer.
type Indexer interface {
	Enqueue(ctx context.Context, categoryID int, organization string, records []model.SubmittedRecord)
}
