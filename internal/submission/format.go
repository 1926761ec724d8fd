// Пакет submission — разбор и проверка загруженных табличных файлов:
// определение разделителя, превалидация заголовка, извлечение записей,
// сверка sequencing-метаданных и заполнение шаблонов payload.
package submission

import (
	"errors"
	"strings"
)

// ErrUnsupportedExtension — расширение файла не входит в список поддерживаемых.
var ErrUnsupportedExtension = errors.New("неподдерживаемое расширение файла")

// columnSeparators — поддерживаемые расширения и их разделители колонок.
var columnSeparators = map[string]rune{
	"tsv": '\t',
	"csv": ',',
}

// ExtensionOf возвращает расширение файла (часть после последней точки)
// в нижнем регистре. Для имени без точки возвращает пустую строку.
func ExtensionOf(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(fileName[idx+1:])
}

// ResolveDelimiter определяет разделитель колонок по расширению файла.
// Второе значение false — расширение не поддерживается.
func ResolveDelimiter(fileName string) (rune, bool) {
	sep, ok := columnSeparators[ExtensionOf(fileName)]
	return sep, ok
}

// EntityNameOf возвращает имя сущности из имени файла:
// часть до первой точки в нижнем регистре ("Donor.v2.tsv" → "donor").
func EntityNameOf(fileName string) string {
	base, _, _ := strings.Cut(fileName, ".")
	return strings.ToLower(strings.TrimSpace(base))
}
