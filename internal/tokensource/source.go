// Пакет tokensource — получение сервисного токена через client_credentials
// grant и его кэширование до истечения срока.
// Используется клиентом Analysis Service как TokenProvider.
package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// renewBefore — за сколько до истечения токен считается устаревшим.
const renewBefore = 5 * time.Second

// ErrEmptyToken — token endpoint вернул ответ без access_token.
var ErrEmptyToken = errors.New("пустой access_token в ответе token endpoint")

// tokenInfo — закэшированный токен с временем, после которого нужен новый.
type tokenInfo struct {
	accessToken string
	renewAt     time.Time
}

// tokenResponse — ответ OAuth2 token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: JSON-маппинг OAuth2 ответа
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Source — потокобезопасный источник токенов client_credentials.
type Source struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	logger       *slog.Logger
	now          func() time.Time

	mu    sync.RWMutex
	token *tokenInfo
}

// New создаёт источник токенов.
// httpClient может содержать TLS-конфигурацию; nil — клиент с таймаутом 30s.
func New(tokenURL, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Source {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Source{
		httpClient:   httpClient,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger.With(slog.String("component", "token_source")),
		now:          time.Now,
	}
}

// Token возвращает действующий токен. Новый токен запрашивается,
// если закэшированного нет или до его истечения осталось меньше 5 секунд.
func (s *Source) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != nil && s.now().Before(s.token.renewAt) {
		token := s.token.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check после получения write lock
	if s.token != nil && s.now().Before(s.token.renewAt) {
		return s.token.accessToken, nil
	}

	resp, err := s.requestToken(ctx)
	if err != nil {
		return "", err
	}

	s.token = &tokenInfo{
		accessToken: resp.AccessToken,
		renewAt:     s.now().Add(time.Duration(resp.ExpiresIn)*time.Second - renewBefore),
	}
	s.logger.Debug("Сервисный токен получен",
		slog.Int("expires_in", resp.ExpiresIn),
	)
	return resp.AccessToken, nil
}

// Invalidate сбрасывает кэш: следующий вызов Token запросит новый токен.
func (s *Source) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
}

// requestToken выполняет client_credentials grant. Вызывается под write lock.
func (s *Source) requestToken(ctx context.Context) (*tokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос token к %s: %w", s.tokenURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token endpoint вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("декодирование token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return &tr, nil
}
