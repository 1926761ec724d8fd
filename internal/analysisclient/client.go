// Пакет analysisclient — HTTP-клиент Analysis Service: регистрация
// анализов секвенирования, чтение их состояния и файлов, публикация
// и подавление (suppress) анализов.
// Запросы авторизуются сервисным токеном (client_credentials).
package analysisclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// AnalysisStatePublished — состояние анализа, файлы которого загружены в хранилище.
const AnalysisStatePublished = "PUBLISHED"

// TokenSource — источник сервисного токена (обычно *tokensource.Source).
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate сбрасывает кэш после ответа 401.
	Invalidate()
}

// SubmitResult — ответ POST /submit/{org}.
type SubmitResult struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
}

// AnalysisFile — файл анализа.
type AnalysisFile struct {
	ObjectID   string `json:"objectId"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	FileMd5sum string `json:"fileMd5sum"`
	FileType   string `json:"fileType"`
	FileAccess string `json:"fileAccess"`
	DataType   string `json:"dataType"`
}

// Analysis — анализ с состоянием и списком файлов.
type Analysis struct {
	AnalysisID    string         `json:"analysisId"`
	AnalysisState string         `json:"analysisState"`
	StudyID       string         `json:"studyId"`
	Files         []AnalysisFile `json:"files"`
}

// APIError — ответ Analysis Service с кодом вне 2xx.
type APIError struct {
	// Op — операция клиента (submit, get_analysis, ...)
	Op         string
	StatusCode int
	// Message — поле message из JSON-тела или тело целиком
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analysis service %s: статус %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("analysis service %s: статус %d: %s", e.Op, e.StatusCode, e.Message)
}

// Client — HTTP-клиент Analysis Service.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	allowDuplicates bool
	tokens          TokenSource
	logger          *slog.Logger
}

// New создаёт клиент Analysis Service.
// httpClient — см. NewHTTPClient; allowDuplicates добавляет ?allowDuplicates=true к submit.
func New(baseURL string, httpClient *http.Client, tokens TokenSource, allowDuplicates bool, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         normalizeURL(baseURL),
		allowDuplicates: allowDuplicates,
		tokens:          tokens,
		logger:          logger.With(slog.String("component", "analysis_client")),
	}
}

// NewHTTPClient создаёт HTTP-клиент с таймаутом и опциональным CA-сертификатом.
// Используется также источником токенов.
func NewHTTPClient(caCertPath string, timeout time.Duration, logger *slog.Logger) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата Analysis Service: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат Analysis Service добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// Submit регистрирует один анализ в студии organization.
// POST /submit/{organization}[?allowDuplicates=true]
func (c *Client) Submit(ctx context.Context, organization string, payload map[string]any) (*SubmitResult, error) {
	path := "/submit/" + url.PathEscape(organization)
	if c.allowDuplicates {
		path += "?allowDuplicates=true"
	}

	var result SubmitResult
	if err := c.do(ctx, "submit", http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	if result.AnalysisID == "" {
		return nil, fmt.Errorf("analysis service submit: пустой analysisId в ответе")
	}

	c.logger.Debug("Анализ зарегистрирован",
		slog.String("organization", organization),
		slog.String("analysis_id", result.AnalysisID),
		slog.String("status", result.Status),
	)
	return &result, nil
}

// GetAnalysis возвращает анализ по ID.
// GET /studies/{organization}/analysis/{analysisId}
func (c *Client) GetAnalysis(ctx context.Context, organization, analysisID string) (*Analysis, error) {
	path := fmt.Sprintf("/studies/%s/analysis/%s", url.PathEscape(organization), url.PathEscape(analysisID))

	var analysis Analysis
	if err := c.do(ctx, "get_analysis", http.MethodGet, path, nil, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ListFiles возвращает файлы анализа.
// GET /studies/{organization}/analysis/{analysisId}/files
func (c *Client) ListFiles(ctx context.Context, organization, analysisID string) ([]AnalysisFile, error) {
	path := fmt.Sprintf("/studies/%s/analysis/%s/files", url.PathEscape(organization), url.PathEscape(analysisID))

	files := make([]AnalysisFile, 0)
	if err := c.do(ctx, "list_files", http.MethodGet, path, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Publish публикует анализ.
// PUT /studies/{organization}/analysis/publish/{analysisId}
func (c *Client) Publish(ctx context.Context, organization, analysisID string) error {
	path := fmt.Sprintf("/studies/%s/analysis/publish/%s", url.PathEscape(organization), url.PathEscape(analysisID))
	return c.do(ctx, "publish", http.MethodPut, path, nil, nil)
}

// Suppress подавляет анализ (компенсация при откате загрузки).
// PUT /studies/{organization}/analysis/suppress/{analysisId}
func (c *Client) Suppress(ctx context.Context, organization, analysisID string) error {
	path := fmt.Sprintf("/studies/%s/analysis/suppress/%s", url.PathEscape(organization), url.PathEscape(analysisID))
	return c.do(ctx, "suppress", http.MethodPut, path, nil, nil)
}

// do выполняет авторизованный JSON-запрос. out == nil — тело ответа игнорируется.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("analysis service %s: сериализация запроса: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("analysis service %s: создание запроса: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("analysis service %s: получение токена: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("analysis service %s: запрос к %s: %w", op, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil {
			c.tokens.Invalidate()
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("analysis service %s: декодирование ответа: %w", op, err)
	}
	return nil
}

// readErrorMessage извлекает message из JSON-тела ошибки.
// Если тело не JSON или поля нет — возвращает тело как есть.
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

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
