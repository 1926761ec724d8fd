// prevalidate.go — превалидация загруженного файла до извлечения записей.
// Читается только первая строка: файл может быть большим, а для проверки
// нужны лишь имена колонок.
package submission

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// SystemIDColumn — колонка, обязательная для файлов редактирования.
const SystemIDColumn = "systemId"

// UploadedFile — временный файл загрузки на диске.
// Принадлежит обработчику запроса и удаляется после извлечения записей.
type UploadedFile struct {
	// Path — путь к временному файлу
	Path string
	// OriginalName — имя файла, указанное клиентом
	OriginalName string
}

// PrevalidateNewFile проверяет файл для новой submission:
//  1. Поддерживаемое расширение (INVALID_FILE_EXTENSION)
//  2. Наличие всех обязательных колонок схемы (MISSING_REQUIRED_HEADER)
//
// Возвращает исходный файл без изменений и ошибку батча (nil — проверка пройдена).
// Ошибка error — только при невозможности прочитать файл.
func PrevalidateNewFile(file UploadedFile, schema *model.Schema) (UploadedFile, *model.BatchError, error) {
	return prevalidate(file, schema, false)
}

// PrevalidateEditFile — то же, что PrevalidateNewFile, но дополнительно
// требует колонку systemId (проверяется первой).
func PrevalidateEditFile(file UploadedFile, schema *model.Schema) (UploadedFile, *model.BatchError, error) {
	return prevalidate(file, schema, true)
}

func prevalidate(file UploadedFile, schema *model.Schema, requireSystemID bool) (UploadedFile, *model.BatchError, error) {
	sep, ok := ResolveDelimiter(file.OriginalName)
	if !ok {
		return file, &model.BatchError{
			Type:      model.BatchErrorInvalidFileExtension,
			Message:   fmt.Sprintf("Недопустимое расширение файла %q", ExtensionOf(file.OriginalName)),
			BatchName: file.OriginalName,
		}, nil
	}

	firstLine, err := readFirstLine(file.Path)
	if err != nil {
		return file, nil, fmt.Errorf("чтение заголовка %s: %w", file.OriginalName, err)
	}

	headers := splitHeader(firstLine, sep)

	if requireSystemID && !slices.Contains(headers, SystemIDColumn) {
		return file, &model.BatchError{
			Type:      model.BatchErrorMissingRequiredHeader,
			Message:   fmt.Sprintf("В файле отсутствует колонка '%s'", SystemIDColumn),
			BatchName: file.OriginalName,
		}, nil
	}

	if missing := missingRequired(schema, headers); len(missing) > 0 {
		return file, &model.BatchError{
			Type:      model.BatchErrorMissingRequiredHeader,
			Message:   fmt.Sprintf("Отсутствуют обязательные поля: %s", strings.Join(missing, ", ")),
			BatchName: file.OriginalName,
		}, nil
	}

	return file, nil, nil
}

// missingRequired возвращает отсортированный список обязательных колонок,
// которых нет в заголовке.
func missingRequired(schema *model.Schema, headers []string) []string {
	if schema == nil {
		return nil
	}
	var missing []string
	for _, label := range schema.RequiredLabels() {
		if !slices.Contains(headers, label) {
			missing = append(missing, label)
		}
	}
	slices.Sort(missing)
	return slices.Compact(missing)
}

// splitHeader разбивает строку заголовка по разделителю и обрезает пробелы.
func splitHeader(line string, sep rune) []string {
	tokens := strings.Split(line, string(sep))
	for i, tok := range tokens {
		tokens[i] = strings.TrimSpace(tok)
	}
	return tokens
}

// readFirstLine читает первую строку файла без загрузки всего содержимого.
// Убирает BOM и завершающий \r.
func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	line = strings.TrimPrefix(line, "\ufeff")
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}
