// Пакет registryclient — HTTP-клиент Submission Registry: активный словарь
// категории, загрузка и редактирование данных, удаление и commit
// активной submission, чтение сохранённых записей.
package registryclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// ErrNotFound — Registry ответил 404.
var ErrNotFound = errors.New("ресурс не найден в реестре")

// APIError — ответ Registry с кодом вне 2xx (кроме 404).
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registry %s: статус %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("registry %s: статус %d: %s", e.Op, e.StatusCode, e.Message)
}

// SubmitRequest — данные для создания или изменения активной submission.
type SubmitRequest struct {
	CategoryID   int            `json:"-"`
	EntityName   string         `json:"entityName"`
	Organization string         `json:"organization"`
	Username     string         `json:"username"`
	Records      []model.Record `json:"records"`
}

// SubmitResponse — результат загрузки записей.
type SubmitResponse struct {
	Status       model.CreateSubmissionStatus `json:"status"`
	SubmissionID *int64                       `json:"submissionId,omitempty"`
	Description  string                       `json:"description"`
}

// --- Формат словаря на проводе ---

type wireField struct {
	Name string `json:"name"`
	Meta struct {
		DisplayName string `json:"displayName"`
	} `json:"meta"`
	Restrictions struct {
		Required bool `json:"required"`
	} `json:"restrictions"`
}

type wireSchema struct {
	Name   string      `json:"name"`
	Fields []wireField `json:"fields"`
}

type wireDictionary struct {
	Name       string       `json:"name"`
	Version    string       `json:"version"`
	Dictionary []wireSchema `json:"dictionary"`
}

// toModel преобразует словарь из формата Registry в доменную модель.
func (d *wireDictionary) toModel() *model.Dictionary {
	dict := &model.Dictionary{
		Name:    d.Name,
		Version: d.Version,
		Schemas: make([]model.Schema, 0, len(d.Dictionary)),
	}
	for _, ws := range d.Dictionary {
		schema := model.Schema{Name: ws.Name, Fields: make([]model.SchemaField, 0, len(ws.Fields))}
		for _, wf := range ws.Fields {
			schema.Fields = append(schema.Fields, model.SchemaField{
				Name:        wf.Name,
				DisplayName: wf.Meta.DisplayName,
				Required:    wf.Restrictions.Required,
			})
		}
		dict.Schemas = append(dict.Schemas, schema)
	}
	return dict
}

// Client — HTTP-клиент Submission Registry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New создаёт клиент Registry.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
func New(baseURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата Registry: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат Registry добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(slog.String("component", "registry_client")),
	}, nil
}

// GetDictionary возвращает активный словарь категории.
// GET /dictionary/category/{categoryId}
func (c *Client) GetDictionary(ctx context.Context, categoryID int) (*model.Dictionary, error) {
	var wd wireDictionary
	path := "/dictionary/category/" + strconv.Itoa(categoryID)
	if err := c.do(ctx, "get_dictionary", http.MethodGet, path, nil, &wd); err != nil {
		return nil, err
	}
	return wd.toModel(), nil
}

// Submit загружает записи в активную submission.
// POST /submission/category/{categoryId}/data
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	return c.sendData(ctx, "submit", http.MethodPost, req)
}

// EditData загружает изменения уже сохранённых записей.
// PUT /submission/category/{categoryId}/data
func (c *Client) EditData(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	return c.sendData(ctx, "edit_data", http.MethodPut, req)
}

func (c *Client) sendData(ctx context.Context, op, method string, req SubmitRequest) (*SubmitResponse, error) {
	path := fmt.Sprintf("/submission/category/%d/data", req.CategoryID)

	var resp SubmitResponse
	if err := c.do(ctx, op, method, path, req, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("Данные переданы в Registry",
		slog.String("op", op),
		slog.Int("category_id", req.CategoryID),
		slog.String("entity", req.EntityName),
		slog.Int("records", len(req.Records)),
		slog.String("status", string(resp.Status)),
	)
	return &resp, nil
}

// DeleteActiveSubmission удаляет активную submission.
// DELETE /submission/{submissionId}?username=
func (c *Client) DeleteActiveSubmission(ctx context.Context, submissionID int64, username string) error {
	path := fmt.Sprintf("/submission/%d?username=%s", submissionID, url.QueryEscape(username))
	return c.do(ctx, "delete_submission", http.MethodDelete, path, nil, nil)
}

// CommitSubmission фиксирует submission. Ответ Registry возвращается как есть.
// POST /submission/category/{categoryId}/commit/{submissionId}
func (c *Client) CommitSubmission(ctx context.Context, categoryID int, submissionID int64, username string) (map[string]any, error) {
	path := fmt.Sprintf("/submission/category/%d/commit/%d", categoryID, submissionID)
	body := map[string]string{"username": username}

	result := make(map[string]any)
	if err := c.do(ctx, "commit", http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSubmission возвращает submission по ID.
// GET /submission/{submissionId}
func (c *Client) GetSubmission(ctx context.Context, submissionID int64) (*model.Submission, error) {
	raw := make(map[string]any)
	if err := c.do(ctx, "get_submission", http.MethodGet, fmt.Sprintf("/submission/%d", submissionID), nil, &raw); err != nil {
		return nil, err
	}

	sub := &model.Submission{ID: submissionID, Raw: raw}
	if v, ok := raw["organization"].(string); ok {
		sub.Organization = v
	}
	if v, ok := raw["status"].(string); ok {
		sub.Status = model.SubmissionStatus(v)
	}
	if v, ok := raw["dictionaryCategory"].(map[string]any); ok {
		if id, ok := v["id"].(float64); ok {
			sub.CategoryID = int(id)
		}
	}
	if id, ok := raw["categoryId"].(float64); ok {
		sub.CategoryID = int(id)
	}
	return sub, nil
}

// GetSubmittedData возвращает сохранённую запись по systemId.
// GET /data/category/{categoryId}/id/{systemId}
func (c *Client) GetSubmittedData(ctx context.Context, categoryID int, systemID string) (map[string]any, error) {
	path := fmt.Sprintf("/data/category/%d/id/%s", categoryID, url.PathEscape(systemID))

	result := make(map[string]any)
	if err := c.do(ctx, "get_data", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// do выполняет JSON-запрос. out == nil — тело ответа игнорируется.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registry %s: сериализация запроса: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("registry %s: создание запроса: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("registry %s: запрос к %s: %w", op, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("registry %s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("registry %s: декодирование ответа: %w", op, err)
	}
	return nil
}

// readErrorMessage извлекает message из JSON-тела ошибки.
func readErrorMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 64*1024))
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// CheckReady проверяет доступность Registry через health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
func (c *Client) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return "fail", "ошибка создания запроса: " + err.Error()
	}
	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "fail", fmt.Sprintf("Registry недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "fail", fmt.Sprintf("Registry вернул статус %d", resp.StatusCode)
	}
	return "ok", "Registry доступен"
}
