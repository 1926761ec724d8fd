// Пакет config — загрузка и валидация конфигурации Submission Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Submission Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Submission Registry ---

	// Базовый URL реестра сабмишенов (обязательный)
	RegistryURL string
	// Таймаут HTTP-запросов к реестру (по умолчанию 30s)
	RegistryTimeout time.Duration
	// Путь к CA-сертификату для TLS к реестру (опционально)
	RegistryCACertPath string

	// --- Загрузка файлов ---

	// Лимит размера загружаемых файлов в байтах (SM_UPLOAD_LIMIT, по умолчанию 10MB)
	UploadLimit int64
	// Каталог для временных файлов загрузки
	UploadDir string

	// --- Analysis Service (sequencing) ---

	SequencingEnabled bool
	SequencingURL     string
	// URL выдачи токена (client credentials)
	SequencingTokenURL     string
	SequencingClientID     string
	SequencingClientSecret string
	// Колонка записи, в которой хранится идентификатор секвенирования
	SequencingIdentifierColumn string
	// Разрешить дубликаты анализов в Analysis Service
	SequencingAllowDuplicates bool
	SequencingTimeout         time.Duration
	// Путь к CA-сертификату для TLS к Analysis Service (опционально)
	SequencingCACertPath string
	// Максимум параллельных запросов при сборке манифеста
	ManifestConcurrency int

	// --- Indexer ---

	IndexerEnabled bool
	IndexerURL     string
	// Соответствие categoryId → код репозитория ("1:repoA,2:repoB")
	IndexerMapping map[int]string
	// Пауза между вызовами индексатора (по умолчанию 500ms)
	IndexerDelay   time.Duration
	IndexerTimeout time.Duration

	// --- Кэш словарей ---

	DictionaryCacheSize int
	DictionaryCacheTTL  time.Duration

	// --- Аутентификация ---

	AuthEnabled bool
	// HTTP-методы, требующие JWT (по умолчанию POST,PUT,DELETE)
	AuthProtectMethods []string
	JWTJWKSURL         string
	// Ожидаемый issuer (опционально)
	JWTIssuer string
	// Допуск расхождения часов при проверке exp/nbf
	JWTLeeway           time.Duration
	JWKSRefreshInterval time.Duration
	JWKSCACertPath      string
	// Группы Keycloak с правами администратора
	AdminGroups []string
	// Суффикс группы/scope с правом записи в организацию (по умолчанию ".WRITE")
	WriteOrgSuffix string
	// Scope сервисного аккаунта, которому разрешён POST /events/commit
	EventsScope string

	// --- Topology metrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для всех зависимостей (сервис — точка входа)
	DephealthIsEntry bool

	// --- OpenTelemetry ---

	OtelEnabled bool
	// Экспортер: stdout, otlp
	OtelExporter string
	// Endpoint OTLP HTTP (host:port)
	OtelEndpoint string
	// Доля сэмплируемых трасс (0..1)
	OtelSampleRatio float64
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("SM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("SM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SM_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	logLevel := getEnvDefault("SM_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("SM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("SM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("SM_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("SM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("SM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("SM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("SM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("SM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("SM_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SM_DB_SSL_MODE", "disable")
	switch cfg.DBSSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return nil, fmt.Errorf("SM_DB_SSL_MODE: недопустимое значение %q", cfg.DBSSLMode)
	}

	// --- Submission Registry ---

	if cfg.RegistryURL, err = getEnvRequired("SM_REGISTRY_URL"); err != nil {
		return nil, err
	}
	cfg.RegistryTimeout, err = getEnvDuration("SM_REGISTRY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_REGISTRY_TIMEOUT: %w", err)
	}
	cfg.RegistryCACertPath = os.Getenv("SM_REGISTRY_CA_CERT_PATH")

	// --- Загрузка файлов ---

	cfg.UploadLimit, err = parseByteSize(getEnvDefault("SM_UPLOAD_LIMIT", "10MB"))
	if err != nil {
		return nil, fmt.Errorf("SM_UPLOAD_LIMIT: %w", err)
	}
	cfg.UploadDir = getEnvDefault("SM_UPLOAD_DIR", os.TempDir())

	// --- Analysis Service ---

	cfg.SequencingEnabled, err = getEnvBool("SM_SEQUENCING_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("SM_SEQUENCING_ENABLED: %w", err)
	}
	cfg.SequencingURL = os.Getenv("SM_SEQUENCING_URL")
	cfg.SequencingTokenURL = os.Getenv("SM_SEQUENCING_TOKEN_URL")
	cfg.SequencingClientID = os.Getenv("SM_SEQUENCING_CLIENT_ID")
	cfg.SequencingClientSecret = os.Getenv("SM_SEQUENCING_CLIENT_SECRET")
	cfg.SequencingIdentifierColumn = os.Getenv("SM_SEQUENCING_IDENTIFIER_COLUMN")
	cfg.SequencingCACertPath = os.Getenv("SM_SEQUENCING_CA_CERT_PATH")
	cfg.SequencingAllowDuplicates, err = getEnvBool("SM_SEQUENCING_ALLOW_DUPLICATES", false)
	if err != nil {
		return nil, fmt.Errorf("SM_SEQUENCING_ALLOW_DUPLICATES: %w", err)
	}
	cfg.SequencingTimeout, err = getEnvDuration("SM_SEQUENCING_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_SEQUENCING_TIMEOUT: %w", err)
	}
	cfg.ManifestConcurrency, err = getEnvInt("SM_MANIFEST_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("SM_MANIFEST_CONCURRENCY: %w", err)
	}
	if cfg.ManifestConcurrency < 1 {
		return nil, fmt.Errorf("SM_MANIFEST_CONCURRENCY: значение должно быть >= 1")
	}

	// --- Indexer ---

	cfg.IndexerEnabled, err = getEnvBool("SM_INDEXER_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("SM_INDEXER_ENABLED: %w", err)
	}
	cfg.IndexerURL = os.Getenv("SM_INDEXER_URL")
	cfg.IndexerMapping, err = parseCategoryMapping(os.Getenv("SM_INDEXER_MAPPING"))
	if err != nil {
		return nil, fmt.Errorf("SM_INDEXER_MAPPING: %w", err)
	}
	cfg.IndexerDelay, err = getEnvDuration("SM_INDEXER_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("SM_INDEXER_DELAY: %w", err)
	}
	cfg.IndexerTimeout, err = getEnvDuration("SM_INDEXER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_INDEXER_TIMEOUT: %w", err)
	}

	// --- Кэш словарей ---

	cfg.DictionaryCacheSize, err = getEnvInt("SM_DICTIONARY_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("SM_DICTIONARY_CACHE_SIZE: %w", err)
	}
	if cfg.DictionaryCacheSize < 1 {
		return nil, fmt.Errorf("SM_DICTIONARY_CACHE_SIZE: значение должно быть >= 1")
	}
	cfg.DictionaryCacheTTL, err = getEnvDuration("SM_DICTIONARY_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_DICTIONARY_CACHE_TTL: %w", err)
	}

	// --- Аутентификация ---

	cfg.AuthEnabled, err = getEnvBool("SM_AUTH_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("SM_AUTH_ENABLED: %w", err)
	}
	cfg.AuthProtectMethods = parseCSV(getEnvDefault("SM_AUTH_PROTECT_METHODS", "POST,PUT,DELETE"))
	for i, m := range cfg.AuthProtectMethods {
		cfg.AuthProtectMethods[i] = strings.ToUpper(m)
	}
	cfg.JWTJWKSURL = os.Getenv("SM_JWT_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("SM_JWT_ISSUER")
	cfg.JWTLeeway, err = getEnvDuration("SM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("SM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSCACertPath = os.Getenv("SM_JWKS_CA_CERT_PATH")
	cfg.AdminGroups = parseCSV(getEnvDefault("SM_ADMIN_GROUPS", "artstore-admins"))
	cfg.WriteOrgSuffix = getEnvDefault("SM_AUTH_WRITE_ORG_SUFFIX", ".WRITE")
	cfg.EventsScope = getEnvDefault("SM_AUTH_EVENTS_SCOPE", "submission:events")

	// --- Topology metrics ---

	cfg.DephealthGroup = getEnvDefault("SM_DEPHEALTH_GROUP", "artstore")
	cfg.DephealthCheckInterval, err = getEnvDuration("SM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("SM_DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("SM_DEPHEALTH_ISENTRY: %w", err)
	}

	// --- OpenTelemetry ---

	cfg.OtelEnabled, err = getEnvBool("SM_OTEL_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("SM_OTEL_ENABLED: %w", err)
	}
	cfg.OtelExporter = getEnvDefault("SM_OTEL_EXPORTER", "stdout")
	cfg.OtelEndpoint = getEnvDefault("SM_OTEL_ENDPOINT", "localhost:4318")
	cfg.OtelSampleRatio, err = getEnvFloat("SM_OTEL_SAMPLE_RATIO", 1.0)
	if err != nil {
		return nil, fmt.Errorf("SM_OTEL_SAMPLE_RATIO: %w", err)
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		return nil, fmt.Errorf("SM_OTEL_SAMPLE_RATIO: значение %g вне диапазона 0-1", cfg.OtelSampleRatio)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет зависимости между параметрами.
func (c *Config) validate() error {
	if c.SequencingEnabled {
		missing := make([]string, 0, 4)
		if c.SequencingURL == "" {
			missing = append(missing, "SM_SEQUENCING_URL")
		}
		if c.SequencingTokenURL == "" {
			missing = append(missing, "SM_SEQUENCING_TOKEN_URL")
		}
		if c.SequencingClientID == "" {
			missing = append(missing, "SM_SEQUENCING_CLIENT_ID")
		}
		if c.SequencingClientSecret == "" {
			missing = append(missing, "SM_SEQUENCING_CLIENT_SECRET")
		}
		if len(missing) > 0 {
			return fmt.Errorf("SM_SEQUENCING_ENABLED=true требует: %s", strings.Join(missing, ", "))
		}
	}
	if c.IndexerEnabled {
		if c.IndexerURL == "" {
			return fmt.Errorf("SM_INDEXER_ENABLED=true требует SM_INDEXER_URL")
		}
		if len(c.IndexerMapping) == 0 {
			return fmt.Errorf("SM_INDEXER_ENABLED=true требует SM_INDEXER_MAPPING")
		}
	}
	if c.AuthEnabled && c.JWTJWKSURL == "" {
		return fmt.Errorf("SM_AUTH_ENABLED=true требует SM_JWT_JWKS_URL")
	}
	if c.OtelExporter != "stdout" && c.OtelExporter != "otlp" {
		return fmt.Errorf("SM_OTEL_EXPORTER: недопустимое значение %q, допустимые: stdout, otlp", c.OtelExporter)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля.
// Используется для лейблов метрик зависимостей, не для подключения.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// IsProtectedMethod сообщает, требует ли HTTP-метод аутентификации.
func (c *Config) IsProtectedMethod(method string) bool {
	for _, m := range c.AuthProtectMethods {
		if m == method {
			return true
		}
	}
	return false
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает дробное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseCSV разбивает строку по запятым, убирает пробелы и пустые элементы.
func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseCategoryMapping разбирает строку вида "1:repoA,2:repoB".
func parseCategoryMapping(s string) (map[int]string, error) {
	result := make(map[int]string)
	for _, pair := range parseCSV(s) {
		idStr, code, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("некорректная пара %q (ожидается categoryId:repository)", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("некорректный categoryId в паре %q", pair)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, fmt.Errorf("пустой код репозитория в паре %q", pair)
		}
		result[id] = code
	}
	return result, nil
}

// byteUnits — множители суффиксов размера, от длинных к коротким.
var byteUnits = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
}

// parseByteSize разбирает размер вида "10MB", "512KB" или число байт.
func parseByteSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("пустое значение размера")
	}

	suffixes := make([]string, 0, len(byteUnits))
	for k := range byteUnits {
		suffixes = append(suffixes, k)
	}
	// Длинные суффиксы проверяются первыми: "MB" раньше "B".
	sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })

	mult := int64(1)
	for _, suf := range suffixes {
		if strings.HasSuffix(v, suf) {
			mult = byteUnits[suf]
			v = strings.TrimSpace(strings.TrimSuffix(v, suf))
			break
		}
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный размер: %q (примеры: 10MB, 512KB, 1048576)", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("размер должен быть > 0")
	}
	return n * mult, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
