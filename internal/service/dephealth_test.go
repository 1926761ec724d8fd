// dephealth_test.go — unit-тесты разбора URL зависимостей.
package service

import (
	"testing"
)

// TestSplitHealthURL проверяет выделение health path из URL зависимости.
func TestSplitHealthURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantBase string
		wantPath string
	}{
		{
			name:     "без пути — путь по умолчанию",
			input:    "http://registry.kryukov.lan:8080",
			wantBase: "http://registry.kryukov.lan:8080",
			wantPath: "/health",
		},
		{
			name:     "корневой путь",
			input:    "http://registry.kryukov.lan:8080/",
			wantBase: "http://registry.kryukov.lan:8080",
			wantPath: "/health",
		},
		{
			name:     "явный путь",
			input:    "https://song.kryukov.lan/api/isAlive",
			wantBase: "https://song.kryukov.lan",
			wantPath: "/api/isAlive",
		},
		{
			name:     "завершающий слэш убирается",
			input:    "http://registry:8080/health/ready/",
			wantBase: "http://registry:8080",
			wantPath: "/health/ready",
		},
		{
			name:     "строка без схемы возвращается как есть",
			input:    "registry:8080",
			wantBase: "registry:8080",
			wantPath: "/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, path := splitHealthURL(tt.input)
			if base != tt.wantBase {
				t.Errorf("base = %q, ожидался %q", base, tt.wantBase)
			}
			if path != tt.wantPath {
				t.Errorf("path = %q, ожидался %q", path, tt.wantPath)
			}
		})
	}
}

// TestHTTPDepOptions проверяет набор опций HTTP-зависимости.
func TestHTTPDepOptions(t *testing.T) {
	plain := httpDepOptions("http://registry:8080", 0, true, false)
	if len(plain) != 4 {
		t.Errorf("опций = %d, ожидалось 4", len(plain))
	}

	entryTLS := httpDepOptions("https://registry:8443/health", 0, true, true)
	if len(entryTLS) != 6 {
		t.Errorf("опций = %d, ожидалось 6 (isentry + TLS)", len(entryTLS))
	}
}
