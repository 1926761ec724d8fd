package submission

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// TestPrevalidateNewFile_MissingRequired — в заголовке только name,
// ожидается одна ошибка MISSING_REQUIRED_HEADER со списком [age].
func TestPrevalidateNewFile_MissingRequired(t *testing.T) {
	file := writeTempFile(t, "person.csv", "name,comment\nAlice,hi\n")

	got, batchErr, err := PrevalidateNewFile(file, nameAgeSchema())
	if err != nil {
		t.Fatalf("PrevalidateNewFile() ошибка: %v", err)
	}
	if got != file {
		t.Errorf("файл = %+v, ожидался исходный %+v", got, file)
	}
	if batchErr == nil {
		t.Fatal("ожидалась ошибка MISSING_REQUIRED_HEADER")
	}
	if batchErr.Type != model.BatchErrorMissingRequiredHeader {
		t.Errorf("Type = %q, ожидался %q", batchErr.Type, model.BatchErrorMissingRequiredHeader)
	}
	if !strings.HasSuffix(batchErr.Message, ": age") {
		t.Errorf("Message = %q, ожидался список из одного поля age", batchErr.Message)
	}
	if batchErr.BatchName != "person.csv" {
		t.Errorf("BatchName = %q, ожидался %q", batchErr.BatchName, "person.csv")
	}
}

// TestPrevalidateNewFile_MissingSorted — недостающие поля сортируются.
func TestPrevalidateNewFile_MissingSorted(t *testing.T) {
	schema := &model.Schema{Fields: []model.SchemaField{
		{Name: "zeta", Required: true},
		{Name: "alpha", Required: true},
		{Name: "mid", Required: true},
	}}
	file := writeTempFile(t, "x.tsv", "mid\n")

	_, batchErr, err := PrevalidateNewFile(file, schema)
	if err != nil {
		t.Fatalf("PrevalidateNewFile() ошибка: %v", err)
	}
	if batchErr == nil || !strings.HasSuffix(batchErr.Message, ": alpha, zeta") {
		t.Fatalf("ошибка = %+v, ожидался список 'alpha, zeta'", batchErr)
	}
}

// TestPrevalidateNewFile_DisplayName — обязательное поле ожидается под displayName.
func TestPrevalidateNewFile_DisplayName(t *testing.T) {
	schema := &model.Schema{Fields: []model.SchemaField{
		{Name: "submitter_donor_id", DisplayName: "Donor ID", Required: true},
	}}

	ok := writeTempFile(t, "donor.tsv", "Donor ID\tgender\nD1\tF\n")
	if _, batchErr, err := PrevalidateNewFile(ok, schema); err != nil || batchErr != nil {
		t.Fatalf("ожидалась успешная превалидация, получено %+v, %v", batchErr, err)
	}

	canonical := writeTempFile(t, "donor2.tsv", "submitter_donor_id\tgender\n")
	_, batchErr, err := PrevalidateNewFile(canonical, schema)
	if err != nil {
		t.Fatalf("PrevalidateNewFile() ошибка: %v", err)
	}
	if batchErr == nil || !strings.Contains(batchErr.Message, "Donor ID") {
		t.Fatalf("ожидалась ошибка с 'Donor ID', получено %+v", batchErr)
	}
}

// TestPrevalidateNewFile_InvalidExtension — неподдерживаемое расширение.
func TestPrevalidateNewFile_InvalidExtension(t *testing.T) {
	file := UploadedFile{Path: "/nonexistent", OriginalName: "person.xlsx"}

	_, batchErr, err := PrevalidateNewFile(file, nameAgeSchema())
	if err != nil {
		t.Fatalf("файл не должен читаться при неверном расширении: %v", err)
	}
	if batchErr == nil || batchErr.Type != model.BatchErrorInvalidFileExtension {
		t.Fatalf("ошибка = %+v, ожидался INVALID_FILE_EXTENSION", batchErr)
	}
	if batchErr.BatchName != "person.xlsx" {
		t.Errorf("BatchName = %q, ожидался %q", batchErr.BatchName, "person.xlsx")
	}
}

// TestPrevalidateNewFile_HeaderOnlyCRLF — заголовок без перевода строки и с CRLF.
func TestPrevalidateNewFile_HeaderOnlyCRLF(t *testing.T) {
	for _, content := range []string{"name,age", "name , age\r\n1,2\r\n", "\ufeffname,age\n"} {
		file := writeTempFile(t, "p.csv", content)
		_, batchErr, err := PrevalidateNewFile(file, nameAgeSchema())
		if err != nil || batchErr != nil {
			t.Errorf("содержимое %q: ожидался успех, получено %+v, %v", content, batchErr, err)
		}
	}
}

// TestPrevalidateNewFile_Idempotent — повторная превалидация даёт тот же
// результат и не изменяет файл.
func TestPrevalidateNewFile_Idempotent(t *testing.T) {
	content := "name\tcomment\nBob\tx\n"
	file := writeTempFile(t, "p.tsv", content)
	schema := nameAgeSchema()

	_, first, err1 := PrevalidateNewFile(file, schema)
	_, second, err2 := PrevalidateNewFile(file, schema)
	if err1 != nil || err2 != nil {
		t.Fatalf("ошибки чтения: %v, %v", err1, err2)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("результаты различаются (-first +second):\n%s", diff)
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("файл должен остаться на диске: %v", err)
	}
	if string(data) != content {
		t.Errorf("содержимое файла изменено: %q", string(data))
	}
}

// TestPrevalidateEditFile_SystemID — для редактирования нужна колонка systemId,
// она проверяется раньше остальных обязательных полей.
func TestPrevalidateEditFile_SystemID(t *testing.T) {
	missing := writeTempFile(t, "p.csv", "comment\n")
	_, batchErr, err := PrevalidateEditFile(missing, nameAgeSchema())
	if err != nil {
		t.Fatalf("PrevalidateEditFile() ошибка: %v", err)
	}
	if batchErr == nil || batchErr.Type != model.BatchErrorMissingRequiredHeader {
		t.Fatalf("ошибка = %+v, ожидался MISSING_REQUIRED_HEADER", batchErr)
	}
	if !strings.Contains(batchErr.Message, "systemId") {
		t.Errorf("Message = %q, ожидалось упоминание systemId", batchErr.Message)
	}
	if strings.Contains(batchErr.Message, "age") {
		t.Errorf("Message = %q: проверка systemId должна завершаться сразу", batchErr.Message)
	}

	ok := writeTempFile(t, "p2.csv", "systemId,name,age\nS1,a,1\n")
	if _, batchErr, err := PrevalidateEditFile(ok, nameAgeSchema()); err != nil || batchErr != nil {
		t.Fatalf("ожидался успех, получено %+v, %v", batchErr, err)
	}
}

// TestPrevalidateNewFile_ReadError — ошибка чтения возвращается как error.
func TestPrevalidateNewFile_ReadError(t *testing.T) {
	file := UploadedFile{Path: "/nonexistent/file.csv", OriginalName: "file.csv"}
	if _, _, err := PrevalidateNewFile(file, nameAgeSchema()); err == nil {
		t.Fatal("ожидалась ошибка чтения несуществующего файла")
	}
}
