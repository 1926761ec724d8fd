package submission

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// TestExtract_RoundTrip — заголовок a,b,c и одна строка 1,2,3.
func TestExtract_RoundTrip(t *testing.T) {
	file := writeTempFile(t, "abc.csv", "a,b,c\n1,2,3\n")

	got, err := Extract(file, &model.Schema{})
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}

	want := []model.Record{{"a": "1", "b": "2", "c": "3"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("записи не совпадают (-want +got):\n%s", diff)
	}
}

// TestExtract_DisplayNames — displayName в заголовке заменяется каноническим именем.
func TestExtract_DisplayNames(t *testing.T) {
	schema := &model.Schema{Fields: []model.SchemaField{
		{Name: "submitter_donor_id", DisplayName: "Donor ID"},
		{Name: "gender"},
	}}
	file := writeTempFile(t, "donor.tsv", "Donor ID\tgender\t extra \nD1\tF\tx\nD2\tM\n")

	got, err := Extract(file, schema)
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}

	want := []model.Record{
		{"submitter_donor_id": "D1", "gender": "F", "extra": "x"},
		{"submitter_donor_id": "D2", "gender": "M", "extra": ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("записи не совпадают (-want +got):\n%s", diff)
	}
}

// TestExtract_EmptyHeadersDropped — пустые колонки заголовка отбрасываются.
func TestExtract_EmptyHeadersDropped(t *testing.T) {
	file := writeTempFile(t, "x.csv", "a,,b\n1,2,3\n")

	got, err := Extract(file, nil)
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("записи = %v, ожидалась одна запись с двумя полями", got)
	}
	if _, ok := got[0][""]; ok {
		t.Error("пустой заголовок не должен попадать в запись")
	}
}

// TestExtract_NormalizesCells — значения проходят нормализацию.
func TestExtract_NormalizesCells(t *testing.T) {
	file := writeTempFile(t, "x.tsv", "name\tnote\n  Alice  \tsay x\"\"y\n")

	got, err := Extract(file, nil)
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
	want := []model.Record{{"name": "Alice", "note": `say x"y`}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("записи не совпадают (-want +got):\n%s", diff)
	}
}

// TestExtract_HeaderOnly — файл только с заголовком даёт пустой список.
func TestExtract_HeaderOnly(t *testing.T) {
	file := writeTempFile(t, "x.csv", "a,b\n")

	got, err := Extract(file, nil)
	if err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("записи = %#v, ожидался пустой срез (не nil)", got)
	}
}

// TestExtract_RemovesTempFile — временный файл удаляется после успеха.
func TestExtract_RemovesTempFile(t *testing.T) {
	file := writeTempFile(t, "x.csv", "a\n1\n")

	if _, err := Extract(file, nil); err != nil {
		t.Fatalf("Extract() ошибка: %v", err)
	}
	if _, err := os.Stat(file.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("временный файл не удалён: %v", err)
	}
}

// TestExtract_UnsupportedExtension — ошибка до чтения, файл всё равно удаляется.
func TestExtract_UnsupportedExtension(t *testing.T) {
	file := writeTempFile(t, "x.json", "a\n1\n")

	_, err := Extract(file, nil)
	if !errors.Is(err, ErrUnsupportedExtension) {
		t.Fatalf("ошибка = %v, ожидалась ErrUnsupportedExtension", err)
	}
	if _, statErr := os.Stat(file.Path); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("временный файл не удалён при ошибке: %v", statErr)
	}
}

// TestNormalizeCell проверяет нормализацию значений ячеек.
func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, `plain`},
		{`  spaced  `, `spaced`},
		{`"quoted"`, `quoted`},
		{` " inner " `, `inner`},
		{`a""b`, `a"b`},
		{`"He said ""hi"" there"`, `He said "hi" there`},
		{`""`, ``},
		{``, ``},
	}
	for _, tt := range tests {
		if got := NormalizeCell(tt.in); got != tt.want {
			t.Errorf("NormalizeCell(%q) = %q, ожидался %q", tt.in, got, tt.want)
		}
	}
}

// TestNormalizeCell_Idempotent — повторное применение к чистому значению
// не меняет его.
func TestNormalizeCell_Idempotent(t *testing.T) {
	for _, v := range []string{"plain", "with space", `mid"quote`, "123", "", "ünïcode"} {
		once := NormalizeCell(v)
		if twice := NormalizeCell(once); twice != once {
			t.Errorf("NormalizeCell не идемпотентна для %q: %q → %q", v, once, twice)
		}
	}
}

// TestFieldIndex проверяет отображение displayName → имя поля.
func TestFieldIndex(t *testing.T) {
	idx := NewFieldIndex(&model.Schema{Fields: []model.SchemaField{
		{Name: "sample_id", DisplayName: "Sample ID"},
		{Name: "age"},
	}})

	if got := idx.Canonical("Sample ID"); got != "sample_id" {
		t.Errorf("Canonical(Sample ID) = %q, ожидался sample_id", got)
	}
	if got := idx.Canonical("unknown"); got != "unknown" {
		t.Errorf("Canonical(unknown) = %q, ожидался unknown", got)
	}
	if got := idx.Canonical("age"); got != "age" {
		t.Errorf("Canonical(age) = %q, ожидался age", got)
	}
}

// TestExtractRecords_WideRow — лишние ячейки строки игнорируются.
func TestExtractRecords_WideRow(t *testing.T) {
	got, err := extractRecords(strings.NewReader("a\n1,2,3\n"), ',', NewFieldIndex(nil))
	if err != nil {
		t.Fatalf("extractRecords() ошибка: %v", err)
	}
	want := []model.Record{{"a": "1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("записи не совпадают (-want +got):\n%s", diff)
	}
}
