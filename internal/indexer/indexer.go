// Пакет indexer — уведомление внешнего индексатора о записях,
// зафиксированных в Registry.
// Вызовы выполняются последовательно в отдельной горутине с паузой
// между запросами; ошибки логируются и не прерывают обработку.
// Shutdown/Close прерывают паузу и текущий запрос; неотправленные
// записи попадают в лог.
package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// Indexer отправляет записи во внешний индексатор.
type Indexer struct {
	httpClient *http.Client
	baseURL    string
	// categoryId → код репозитория индексатора
	repositories map[int]string
	delay        time.Duration
	logger       *slog.Logger

	wg sync.WaitGroup
	// stopCtx отменяется при остановке: прерывает паузы и запросы.
	stopCtx context.Context
	stop    context.CancelFunc
}

// New создаёт Indexer.
func New(baseURL string, repositories map[int]string, delay, timeout time.Duration, logger *slog.Logger) *Indexer {
	stopCtx, stop := context.WithCancel(context.Background())
	return &Indexer{
		stopCtx:      stopCtx,
		stop:         stop,
		httpClient:   &http.Client{Timeout: timeout, Transport: &http.Transport{}},
		baseURL:      strings.TrimRight(baseURL, "/"),
		repositories: repositories,
		delay:        delay,
		logger:       logger.With(slog.String("component", "indexer")),
	}
}

// Enqueue запускает индексацию записей в фоне и сразу возвращает управление.
// Контекст запроса отвязывается от отмены: индексация переживает ответ клиенту.
func (ix *Indexer) Enqueue(ctx context.Context, categoryID int, organization string, records []model.SubmittedRecord) {
	if len(records) == 0 {
		return
	}

	repo, ok := ix.repositories[categoryID]
	if !ok {
		ix.logger.Warn("Для категории не настроен репозиторий индексатора",
			slog.Int("category_id", categoryID),
		)
		return
	}

	if ix.stopCtx.Err() != nil {
		ix.logSkipped(repo, records)
		return
	}

	// Отвязка от отмены запроса, но не от остановки индексатора.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopRun := context.AfterFunc(ix.stopCtx, cancel)
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer cancel()
		defer stopRun()
		ix.run(runCtx, repo, organization, records)
	}()
}

// Shutdown ждёт завершения запущенных индексаций, пока не истечёт ctx.
// После этого оставшиеся индексации прерываются, а неотправленные
// записи логируются. Возвращает ctx.Err(), если ожидание прервано.
func (ix *Indexer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ix.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	ix.stop()
	<-done
	ix.httpClient.CloseIdleConnections()
	return err
}

// Close немедленно прерывает индексации и ждёт выхода горутин.
func (ix *Indexer) Close() {
	ix.stop()
	ix.wg.Wait()
	ix.httpClient.CloseIdleConnections()
}

// run последовательно отправляет записи с паузой между вызовами.
func (ix *Indexer) run(ctx context.Context, repo, organization string, records []model.SubmittedRecord) {
	indexed := 0
	for i, rec := range records {
		if i > 0 && ix.delay > 0 {
			timer := time.NewTimer(ix.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if ctx.Err() != nil {
			ix.logSkipped(repo, records[i:])
			break
		}

		org := rec.Organization
		if org == "" {
			org = organization
		}
		if err := ix.Index(ctx, repo, org, rec.SystemID); err != nil {
			ix.logger.Error("Ошибка индексации записи",
				slog.String("repository", repo),
				slog.String("system_id", rec.SystemID),
				slog.String("error", err.Error()),
			)
			continue
		}
		indexed++
	}

	ix.logger.Info("Индексация завершена",
		slog.String("repository", repo),
		slog.Int("total", len(records)),
		slog.Int("indexed", indexed),
	)
}

// logSkipped логирует записи, не отправленные из-за остановки.
func (ix *Indexer) logSkipped(repo string, records []model.SubmittedRecord) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.SystemID)
	}
	ix.logger.Warn("Индексатор остановлен, записи не отправлены",
		slog.String("repository", repo),
		slog.Int("skipped", len(records)),
		slog.Any("system_ids", ids),
	)
}

// Index отправляет одну запись.
// POST {baseURL}/index/repository/{repo}/organization/{org}/id/{systemId}
func (ix *Indexer) Index(ctx context.Context, repo, organization, systemID string) error {
	reqURL := fmt.Sprintf("%s/index/repository/%s/organization/%s/id/%s",
		ix.baseURL, url.PathEscape(repo), url.PathEscape(organization), url.PathEscape(systemID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса индексации: %w", err)
	}

	resp, err := ix.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос к индексатору: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("индексатор вернул статус %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
