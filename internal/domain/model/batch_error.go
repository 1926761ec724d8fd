package model

// BatchErrorType — тип ошибки обработки файла (батча).
type BatchErrorType string

// Таксономия ошибок батча.
const (
	// BatchErrorInvalidFileExtension — неподдерживаемое расширение файла.
	BatchErrorInvalidFileExtension BatchErrorType = "INVALID_FILE_EXTENSION"
	// BatchErrorInvalidFileName — имя файла не соответствует ни одной сущности словаря.
	BatchErrorInvalidFileName BatchErrorType = "INVALID_FILE_NAME"
	// BatchErrorMissingRequiredHeader — в заголовке файла нет обязательных колонок.
	BatchErrorMissingRequiredHeader BatchErrorType = "MISSING_REQUIRED_HEADER"
	// BatchErrorIncorrectSection — несоответствие sequencing-метаданных,
	// отказ Registry или ошибка Analysis Service.
	BatchErrorIncorrectSection BatchErrorType = "INCORRECT_SECTION"
)

// BatchError — ошибка, относящаяся к конкретному загруженному файлу.
type BatchError struct {
	Type      BatchErrorType `json:"type"`
	Message   string         `json:"message"`
	BatchName string         `json:"batchName"`
}

// CreateSubmissionStatus — итоговый статус запроса на создание submission.
type CreateSubmissionStatus string

// Статусы создания submission.
const (
	StatusProcessing        CreateSubmissionStatus = "PROCESSING"
	StatusInvalidSubmission CreateSubmissionStatus = "INVALID_SUBMISSION"
)
