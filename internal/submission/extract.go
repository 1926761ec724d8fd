// extract.go — потоковое извлечение записей из CSV/TSV файла.
// Временный файл удаляется при любом исходе (defer), ровно один раз.
package submission

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// FieldIndex — отображение displayName → каноническое имя полей схемы.
// Строится один раз на схему и переиспользуется для всех строк.
type FieldIndex struct {
	byDisplay map[string]string
}

// NewFieldIndex строит индекс полей схемы.
func NewFieldIndex(schema *model.Schema) *FieldIndex {
	idx := &FieldIndex{
		byDisplay: make(map[string]string),
	}
	if schema == nil {
		return idx
	}
	for _, f := range schema.Fields {
		idx.byDisplay[f.Label()] = f.Name
	}
	return idx
}

// Canonical возвращает каноническое имя для колонки файла.
// Если колонка не совпадает ни с одним displayName — возвращает её как есть.
func (i *FieldIndex) Canonical(header string) string {
	if name, ok := i.byDisplay[header]; ok {
		return name
	}
	return header
}

// Extract читает файл построчно и возвращает записи.
// Первая строка — заголовки: displayName заменяется каноническим именем,
// пустые заголовки отбрасываются. Значения ячеек проходят через NormalizeCell,
// недостающие ячейки в конце строки заполняются пустой строкой.
//
// Временный файл удаляется по завершении независимо от результата.
func Extract(file UploadedFile, schema *model.Schema) ([]model.Record, error) {
	defer os.Remove(file.Path) //nolint:errcheck // удаление временного файла — best effort

	sep, ok := ResolveDelimiter(file.OriginalName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, file.OriginalName)
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("открытие файла %s: %w", file.OriginalName, err)
	}
	defer f.Close()

	return extractRecords(f, sep, NewFieldIndex(schema))
}

// extractRecords разбирает поток с заданным разделителем.
func extractRecords(r io.Reader, sep rune, index *FieldIndex) ([]model.Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var headers []string
	records := make([]model.Record, 0)

	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("разбор строки %d: %w", line, err)
		}

		if headers == nil {
			headers = mapHeaders(row, index)
			continue
		}

		records = append(records, mapRecordToHeaders(headers, row))
	}

	return records, nil
}

// mapHeaders заменяет displayName каноническими именами и убирает пустые колонки.
func mapHeaders(row []string, index *FieldIndex) []string {
	headers := make([]string, 0, len(row))
	for i, tok := range row {
		if i == 0 {
			tok = strings.TrimPrefix(tok, "\ufeff")
		}
		name := strings.TrimSpace(index.Canonical(strings.TrimSpace(tok)))
		if name == "" {
			continue
		}
		headers = append(headers, name)
	}
	return headers
}

// mapRecordToHeaders сопоставляет ячейки строки заголовкам по позиции.
func mapRecordToHeaders(headers, row []string) model.Record {
	rec := make(model.Record, len(headers))
	for i, h := range headers {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		rec[h] = NormalizeCell(cell)
	}
	return rec
}

// NormalizeCell убирает артефакты экспорта из Excel: одну открывающую
// и одну закрывающую двойную кавычку, удвоенные кавычки внутри строки
// заменяет одинарными. Пробелы обрезаются до и после.
func NormalizeCell(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, `"`)
	value = strings.TrimSuffix(value, `"`)
	value = strings.ReplaceAll(value, `""`, `"`)
	return strings.TrimSpace(value)
}
