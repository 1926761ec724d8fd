// compensation.go — журнал компенсирующих действий загрузки.
// Каждый завершённый побочный эффект (submission в Registry, анализ
// в Analysis Service) записывается вместе с действием отмены; при
// откате журнал проходится в обратном порядке.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// compensationTimeout — время на выполнение всего отката.
const compensationTimeout = 30 * time.Second

// compensation — одно действие отмены.
type compensation struct {
	// name — описание для логов ("registry submission 42")
	name string
	undo func(ctx context.Context) error
}

// compensationLog — журнал компенсаций одного запроса. Не потокобезопасен:
// используется одной горутиной обработки загрузки.
type compensationLog struct {
	entries []compensation
	logger  *slog.Logger
}

func newCompensationLog(logger *slog.Logger) *compensationLog {
	return &compensationLog{logger: logger}
}

// push добавляет действие отмены для только что завершённого шага.
func (l *compensationLog) push(name string, undo func(ctx context.Context) error) {
	l.entries = append(l.entries, compensation{name: name, undo: undo})
}

// len возвращает количество записанных действий.
func (l *compensationLog) len() int {
	return len(l.entries)
}

// unwind выполняет все действия отмены в обратном порядке.
// Пустой журнал — не откат и не учитывается в sm_rollbacks_total.
// Контекст отвязан от отмены запроса: откат выполняется и после
// разрыва соединения клиентом. Ошибки отдельных действий логируются,
// выполнение продолжается; возвращается объединённая ошибка.
func (l *compensationLog) unwind(ctx context.Context) error {
	if l.len() == 0 {
		return nil
	}
	l.logger.Warn("Откат загрузки", slog.Int("actions", l.len()))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var errs []error
	for i := len(l.entries) - 1; i >= 0; i-- {
		c := l.entries[i]
		if err := c.undo(ctx); err != nil {
			l.logger.Error("Ошибка компенсирующего действия",
				slog.String("action", c.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		l.logger.Info("Компенсирующее действие выполнено",
			slog.String("action", c.name),
		)
	}
	l.entries = nil
	rollbacksTotal.Inc()
	return errors.Join(errs...)
}
