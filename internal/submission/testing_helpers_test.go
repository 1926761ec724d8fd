package submission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

// writeTempFile создаёт временный файл загрузки с указанным содержимым.
func writeTempFile(t *testing.T, originalName, content string) UploadedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload-"+originalName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("не удалось записать временный файл: %v", err)
	}
	return UploadedFile{Path: path, OriginalName: originalName}
}

// nameAgeSchema — схема с обязательными полями name и age.
func nameAgeSchema() *model.Schema {
	return &model.Schema{
		Name: "person",
		Fields: []model.SchemaField{
			{Name: "name", Required: true},
			{Name: "age", Required: true},
			{Name: "comment"},
		},
	}
}
