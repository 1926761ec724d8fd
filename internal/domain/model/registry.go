package model

// SubmissionStatus — статус submission в Registry.
type SubmissionStatus string

// Статусы submission, значимые для Submission Module.
const (
	SubmissionStatusOpen      SubmissionStatus = "OPEN"
	SubmissionStatusValid     SubmissionStatus = "VALID"
	SubmissionStatusInvalid   SubmissionStatus = "INVALID"
	SubmissionStatusClosed    SubmissionStatus = "CLOSED"
	SubmissionStatusCommitted SubmissionStatus = "COMMITTED"
)

// Submission — активная submission в Registry.
// Raw хранит исходное JSON-представление для проксирования клиенту.
type Submission struct {
	ID           int64
	CategoryID   int
	Organization string
	Status       SubmissionStatus
	Raw          map[string]any
}

// SubmittedRecord — запись, сохранённая в Registry.
type SubmittedRecord struct {
	SystemID     string         `json:"systemId"`
	EntityName   string         `json:"entityName"`
	Organization string         `json:"organization"`
	Data         map[string]any `json:"data"`
}

// CommitEvent — событие завершения commit, отправляемое Registry.
type CommitEvent struct {
	CategoryID   int             `json:"categoryId"`
	Organization string          `json:"organization"`
	SubmissionID int64           `json:"submissionId"`
	Data         CommitEventData `json:"data"`
}

// CommitEventData — записи, затронутые commit.
type CommitEventData struct {
	Inserts []SubmittedRecord `json:"inserts"`
	Updates []SubmittedRecord `json:"updates"`
	Deletes []SubmittedRecord `json:"deletes"`
}
