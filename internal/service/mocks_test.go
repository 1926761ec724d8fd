package service

import (
	"context"
	"sync"

	"github.com/bigkaa/goartstore/submission-module/internal/analysisclient"
	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
	"github.com/bigkaa/goartstore/submission-module/internal/registryclient"
	"github.com/bigkaa/goartstore/submission-module/internal/repository"
)

// --- Mock Registry ---

// mockRegistry — мок Registry для unit-тестов.
type mockRegistry struct {
	getDictionaryFn    func(ctx context.Context, categoryID int) (*model.Dictionary, error)
	submitFn           func(ctx context.Context, req registryclient.SubmitRequest) (*registryclient.SubmitResponse, error)
	editDataFn         func(ctx context.Context, req registryclient.SubmitRequest) (*registryclient.SubmitResponse, error)
	deleteFn           func(ctx context.Context, submissionID int64, username string) error
	commitFn           func(ctx context.Context, categoryID int, submissionID int64, username string) (map[string]any, error)
	getSubmissionFn    func(ctx context.Context, submissionID int64) (*model.Submission, error)
	getSubmittedDataFn func(ctx context.Context, categoryID int, systemID string) (map[string]any, error)

	mu      sync.Mutex
	deleted []int64
}

func (m *mockRegistry) GetDictionary(ctx context.Context, categoryID int) (*model.Dictionary, error) {
	if m.getDictionaryFn != nil {
		return m.getDictionaryFn(ctx, categoryID)
	}
	return nil, registryclient.ErrNotFound
}

func (m *mockRegistry) Submit(ctx context.Context, req registryclient.SubmitRequest) (*registryclient.SubmitResponse, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, req)
	}
	id := int64(1)
	return &registryclient.SubmitResponse{Status: model.StatusProcessing, SubmissionID: &id}, nil
}

func (m *mockRegistry) EditData(ctx context.Context, req registryclient.SubmitRequest) (*registryclient.SubmitResponse, error) {
	if m.editDataFn != nil {
		return m.editDataFn(ctx, req)
	}
	id := int64(1)
	return &registryclient.SubmitResponse{Status: model.StatusProcessing, SubmissionID: &id}, nil
}

func (m *mockRegistry) DeleteActiveSubmission(ctx context.Context, submissionID int64, username string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, submissionID)
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, submissionID, username)
	}
	return nil
}

func (m *mockRegistry) CommitSubmission(ctx context.Context, categoryID int, submissionID int64, username string) (map[string]any, error) {
	if m.commitFn != nil {
		return m.commitFn(ctx, categoryID, submissionID, username)
	}
	return map[string]any{}, nil
}

func (m *mockRegistry) GetSubmission(ctx context.Context, submissionID int64) (*model.Submission, error) {
	if m.getSubmissionFn != nil {
		return m.getSubmissionFn(ctx, submissionID)
	}
	return nil, registryclient.ErrNotFound
}

func (m *mockRegistry) GetSubmittedData(ctx context.Context, categoryID int, systemID string) (map[string]any, error) {
	if m.getSubmittedDataFn != nil {
		return m.getSubmittedDataFn(ctx, categoryID, systemID)
	}
	return nil, registryclient.ErrNotFound
}

func (m *mockRegistry) deletedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.deleted...)
}

// --- Mock Analysis Service ---

// mockAnalysis — мок AnalysisService для unit-тестов.
type mockAnalysis struct {
	submitFn      func(ctx context.Context, organization string, payload map[string]any) (*analysisclient.SubmitResult, error)
	getAnalysisFn func(ctx context.Context, organization, analysisID string) (*analysisclient.Analysis, error)
	listFilesFn   func(ctx context.Context, organization, analysisID string) ([]analysisclient.AnalysisFile, error)
	publishFn     func(ctx context.Context, organization, analysisID string) error

	mu         sync.Mutex
	submitted  []map[string]any
	suppressed []string
	published  []string
}

func (m *mockAnalysis) Submit(ctx context.Context, organization string, payload map[string]any) (*analysisclient.SubmitResult, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, payload)
	m.mu.Unlock()
	if m.submitFn != nil {
		return m.submitFn(ctx, organization, payload)
	}
	return &analysisclient.SubmitResult{AnalysisID: "an-1", Status: "UNPUBLISHED"}, nil
}

func (m *mockAnalysis) GetAnalysis(ctx context.Context, organization, analysisID string) (*analysisclient.Analysis, error) {
	if m.getAnalysisFn != nil {
		return m.getAnalysisFn(ctx, organization, analysisID)
	}
	return &analysisclient.Analysis{AnalysisID: analysisID}, nil
}

func (m *mockAnalysis) ListFiles(ctx context.Context, organization, analysisID string) ([]analysisclient.AnalysisFile, error) {
	if m.listFilesFn != nil {
		return m.listFilesFn(ctx, organization, analysisID)
	}
	return nil, nil
}

func (m *mockAnalysis) Publish(ctx context.Context, organization, analysisID string) error {
	m.mu.Lock()
	m.published = append(m.published, analysisID)
	m.mu.Unlock()
	if m.publishFn != nil {
		return m.publishFn(ctx, organization, analysisID)
	}
	return nil
}

func (m *mockAnalysis) Suppress(_ context.Context, _, analysisID string) error {
	m.mu.Lock()
	m.suppressed = append(m.suppressed, analysisID)
	m.mu.Unlock()
	return nil
}

// --- Mock repository ---

// mockFileRepo — мок SubmissionFileRepository для unit-тестов.
type mockFileRepo struct {
	insertManyFn        func(ctx context.Context, files []model.SubmissionFile) ([]model.SubmissionFile, error)
	getBySubmissionIDFn func(ctx context.Context, submissionID int64) ([]model.SubmissionFile, error)
	getBySystemIDFn     func(ctx context.Context, systemID string) ([]model.SubmissionFile, error)
	updateSystemIDFn    func(ctx context.Context, id int64, systemID string) error

	inserted []model.SubmissionFile
}

func (m *mockFileRepo) InsertMany(ctx context.Context, files []model.SubmissionFile) ([]model.SubmissionFile, error) {
	if m.insertManyFn != nil {
		return m.insertManyFn(ctx, files)
	}
	m.inserted = append(m.inserted, files...)
	return files, nil
}

func (m *mockFileRepo) GetBySubmissionID(ctx context.Context, submissionID int64) ([]model.SubmissionFile, error) {
	if m.getBySubmissionIDFn != nil {
		return m.getBySubmissionIDFn(ctx, submissionID)
	}
	return nil, nil
}

func (m *mockFileRepo) GetBySystemID(ctx context.Context, systemID string) ([]model.SubmissionFile, error) {
	if m.getBySystemIDFn != nil {
		return m.getBySystemIDFn(ctx, systemID)
	}
	return nil, nil
}

func (m *mockFileRepo) UpdateSystemID(ctx context.Context, id int64, systemID string) error {
	if m.updateSystemIDFn != nil {
		return m.updateSystemIDFn(ctx, id, systemID)
	}
	return nil
}

var _ repository.SubmissionFileRepository = (*mockFileRepo)(nil)

// --- Mock Indexer ---

// mockIndexer — мок Indexer, запоминающий переданные записи.
type mockIndexer struct {
	categoryID   int
	organization string
	records      []model.SubmittedRecord
	calls        int
}

func (m *mockIndexer) Enqueue(_ context.Context, categoryID int, organization string, records []model.SubmittedRecord) {
	m.calls++
	m.categoryID = categoryID
	m.organization = organization
	m.records = append(m.records, records...)
}
