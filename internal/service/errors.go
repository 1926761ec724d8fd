// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — состояние ресурса не допускает операцию.
	ErrConflict = errors.New("конфликт состояния ресурса")
	// ErrForbidden — у пользователя нет права записи в организацию.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrBadRequest — некорректный запрос (нет файлов, неизвестный словарь и т.п.).
	ErrBadRequest = errors.New("некорректный запрос")
)

// PersistenceError — не удалось сохранить связи файлов после успешной
// регистрации в Registry и Analysis Service. Изменения откачены;
// SubmissionID сохраняется для ручной сверки.
type PersistenceError struct {
	SubmissionID int64
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("сохранение связей файлов submission %d: %v", e.SubmissionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
