// sequencing.go — сверка sequencing-метаданных с извлечёнными записями.
// Каждый sequencing-файл должен ссылаться ровно на одно значение
// колонки-идентификатора в записях основного файла.
package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// ReconcileResult — результат сверки sequencing-метаданных.
type ReconcileResult struct {
	// Errors — ошибки сверки (INCORRECT_SECTION)
	Errors []model.BatchError
	// ValidFiles — сопоставленные файлы в порядке входных данных
	ValidFiles []model.SequencingFileMetadata
}

// IdentifierFromFileName выделяет идентификатор записи из имени файла:
// часть до первой точки, затем часть до первого дефиса.
// "S1-R1.fastq.gz" → "S1".
func IdentifierFromFileName(fileName string) string {
	base, _, _ := strings.Cut(fileName, ".")
	if base == "" {
		return ""
	}
	id, _, _ := strings.Cut(base, "-")
	return id
}

// ReconcileSequencing сопоставляет sequencing-файлы с записями по колонке
// identifierColumn.
//
// Если хотя бы одно имя файла не содержит идентификатора, возвращаются
// только эти ошибки — несовпадения в этом случае не проверяются.
// Пустой список файлов или пустое имя колонки — пустой результат.
func ReconcileSequencing(
	entries []model.SequencingFileMetadata,
	records []model.Record,
	batchName string,
	identifierColumn string,
) ReconcileResult {
	var result ReconcileResult
	if len(entries) == 0 || identifierColumn == "" {
		return result
	}

	withIDs := make([]model.SequencingFileMetadata, 0, len(entries))
	for _, e := range entries {
		e.Identifier = IdentifierFromFileName(e.FileName)
		if e.Identifier == "" {
			result.Errors = append(result.Errors, model.BatchError{
				Type:      model.BatchErrorIncorrectSection,
				Message:   fmt.Sprintf("Не удалось определить идентификатор из имени файла %q", e.FileName),
				BatchName: batchName,
			})
			continue
		}
		withIDs = append(withIDs, e)
	}
	if len(result.Errors) > 0 {
		return result
	}

	present := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if v := rec[identifierColumn]; v != "" {
			present[v] = struct{}{}
		}
	}

	seen := make(map[string]string, len(withIDs))
	for _, e := range withIDs {
		if _, ok := present[e.Identifier]; !ok {
			result.Errors = append(result.Errors, model.BatchError{
				Type: model.BatchErrorIncorrectSection,
				Message: fmt.Sprintf("Файл %q: значение %q не найдено в колонке '%s'",
					e.FileName, e.Identifier, identifierColumn),
				BatchName: batchName,
			})
			continue
		}
		if prev, dup := seen[e.Identifier]; dup {
			result.Errors = append(result.Errors, model.BatchError{
				Type: model.BatchErrorIncorrectSection,
				Message: fmt.Sprintf("Файлы %q и %q ссылаются на одно значение %q",
					prev, e.FileName, e.Identifier),
				BatchName: batchName,
			})
			continue
		}
		seen[e.Identifier] = e.FileName
		result.ValidFiles = append(result.ValidFiles, e)
	}

	return result
}

var (
	errNotANumber     = errors.New("ожидается число")
	errNegativeSize   = errors.New("размер не может быть отрицательным")
	errSizeOutOfRange = errors.New("размер вне допустимого диапазона")
)

// ValidationError — ошибка разбора поля sequencingMetadata запроса.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Issues, " | ")
}

// rawSequencingEntry — элемент JSON до валидации. fileSize допускает
// как число, так и строку с числом.
type rawSequencingEntry struct {
	FileName   *string         `json:"fileName"`
	FileSize   json.RawMessage `json:"fileSize"`
	FileMd5sum *string         `json:"fileMd5sum"`
	FileAccess *string         `json:"fileAccess"`
	FileType   *string         `json:"fileType"`
}

// ParseSequencingMetadata разбирает JSON-массив sequencing-метаданных
// из поля формы. Возвращает *ValidationError со списком проблем по полям.
func ParseSequencingMetadata(raw string) ([]model.SequencingFileMetadata, error) {
	var entries []rawSequencingEntry
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&entries); err != nil {
		return nil, &ValidationError{Issues: []string{"Некорректный JSON: " + err.Error()}}
	}

	var issues []string
	out := make([]model.SequencingFileMetadata, 0, len(entries))
	for i, e := range entries {
		requireString := func(field string, v *string) string {
			if v == nil {
				issues = append(issues, fmt.Sprintf("[%d].%s: обязательное поле", i, field))
				return ""
			}
			return *v
		}

		meta := model.SequencingFileMetadata{
			FileName:   requireString("fileName", e.FileName),
			FileMd5sum: requireString("fileMd5sum", e.FileMd5sum),
			FileAccess: requireString("fileAccess", e.FileAccess),
			FileType:   requireString("fileType", e.FileType),
		}

		size, err := parseFileSize(e.FileSize)
		if err != nil {
			issues = append(issues, fmt.Sprintf("[%d].fileSize: %s", i, err.Error()))
		}
		meta.FileSize = size

		out = append(out, meta)
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}

// parseFileSize приводит fileSize к int64: число или строка с числом.
func parseFileSize(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("обязательное поле")
	}

	var n json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errNotANumber
		}
		n = json.Number(strings.TrimSpace(s))
	} else if err := json.Unmarshal(raw, &n); err != nil {
		return 0, errNotANumber
	}

	if v, err := n.Int64(); err == nil {
		if v < 0 {
			return 0, errNegativeSize
		}
		return v, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotANumber
	}
	if f < 0 {
		return 0, errNegativeSize
	}
	// float64(math.MaxInt64) округляется до 2^63 и в int64 уже не помещается.
	if f >= math.MaxInt64 {
		return 0, errSizeOutOfRange
	}
	return int64(f), nil
}
