package model

import "time"

// SubmissionFile — строка таблицы submission_files: связь submission
// Registry с analysis в Analysis Service.
type SubmissionFile struct {
	// ID — первичный ключ
	ID int64
	// SubmissionID — идентификатор submission в Registry
	SubmissionID int64
	// AnalysisID — идентификатор analysis в Analysis Service
	AnalysisID string
	// RecordIdentifier — значение колонки-идентификатора в записи
	RecordIdentifier string
	// SystemID — постоянный идентификатор записи, назначается после commit
	SystemID *string
	// CreatedAt — время создания строки
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ManifestEntry — элемент манифеста ответа: файл, зарегистрированный
// в Analysis Service.
type ManifestEntry struct {
	ObjectID string `json:"objectId"`
	FileName string `json:"fileName"`
	MD5Sum   string `json:"md5Sum"`
}

// FileMetadata — файл submission с признаком загрузки в хранилище.
type FileMetadata struct {
	ManifestEntry
	IsUploaded bool `json:"isUploaded"`
}
