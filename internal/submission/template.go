// template.go — заполнение JSON-шаблонов payload значениями полей записи.
// Шаблоны встроены в бинарник (embed) и содержат плейсхолдеры {{ имя_поля }}.
package submission

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
)

// SequencingTemplate — шаблон payload для регистрации sequencing-файла.
const SequencingTemplate = "sequencing_payload.json"

// ErrInvalidTemplate — после подстановки шаблон не является валидным JSON
// или шаблон не найден. Это ошибка конфигурации, а не данных.
var ErrInvalidTemplate = errors.New("некорректный шаблон payload")

//go:embed templates/*.json
var embeddedTemplates embed.FS

// placeholderRe — плейсхолдер {{ key }}.
var placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Templates — набор именованных JSON-шаблонов.
// Содержимое читается один раз и кэшируется.
type Templates struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]string
}

// NewTemplates создаёт набор шаблонов из fsys (корень — каталог шаблонов).
func NewTemplates(fsys fs.FS) *Templates {
	return &Templates{fsys: fsys, cache: make(map[string]string)}
}

// DefaultTemplates возвращает встроенные шаблоны.
func DefaultTemplates() *Templates {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		panic(fmt.Sprintf("встроенные шаблоны: %v", err))
	}
	return NewTemplates(sub)
}

// Fill подставляет значения record в шаблон templateName и разбирает результат.
// Отсутствующие поля заменяются пустой строкой. Значения экранируются
// для строкового контекста JSON.
func (t *Templates) Fill(record map[string]string, templateName string) (map[string]any, error) {
	text, err := t.load(templateName)
	if err != nil {
		return nil, err
	}

	filled := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := strings.TrimSpace(m[2 : len(m)-2])
		return escapeJSONString(record[key])
	})

	var payload map[string]any
	if err := json.Unmarshal([]byte(filled), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, templateName, err)
	}
	return payload, nil
}

func (t *Templates) load(name string) (string, error) {
	t.mu.RLock()
	text, ok := t.cache[name]
	t.mu.RUnlock()
	if ok {
		return text, nil
	}

	data, err := fs.ReadFile(t.fsys, name)
	if err != nil {
		return "", fmt.Errorf("%w: чтение %s: %v", ErrInvalidTemplate, name, err)
	}

	t.mu.Lock()
	t.cache[name] = string(data)
	t.mu.Unlock()
	return string(data), nil
}

// escapeJSONString экранирует значение для вставки внутрь JSON-строки.
func escapeJSONString(v string) string {
	b, _ := json.Marshal(v)
	return string(b[1 : len(b)-1])
}

// PrefixKeys возвращает копию record, где к каждому ключу добавлен prefix.
func PrefixKeys(record map[string]string, prefix string) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		out[prefix+k] = v
	}
	return out
}
