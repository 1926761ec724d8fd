package analysisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeTokens — TokenSource с фиксированным токеном.
type fakeTokens struct {
	token       string
	err         error
	invalidated int
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) { return f.token, f.err }
func (f *fakeTokens) Invalidate()                               { f.invalidated++ }

// setupMockAnalysis создаёт mock Analysis Service.
func setupMockAnalysis(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestSubmit(t *testing.T) {
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submit/ORG-1" {
			t.Errorf("запрос %s %s, ожидался POST /submit/ORG-1", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("allowDuplicates"); got != "true" {
			t.Errorf("allowDuplicates = %q, ожидался true", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sa-token" {
			t.Errorf("Authorization = %q, ожидался Bearer sa-token", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("декодирование тела: %v", err)
		}
		if payload["studyId"] != "ORG-1" {
			t.Errorf("studyId = %v, ожидался ORG-1", payload["studyId"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"analysisId":"an-1","status":"OK"}`))
	})

	client := New(server.URL+"/", nil, &fakeTokens{token: "sa-token"}, true, testLogger())
	result, err := client.Submit(context.Background(), "ORG-1", map[string]any{"studyId": "ORG-1"})
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
	if result.AnalysisID != "an-1" {
		t.Errorf("AnalysisID = %q, ожидался an-1", result.AnalysisID)
	}
}

func TestSubmit_WithoutAllowDuplicates(t *testing.T) {
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, ожидался пустой", r.URL.RawQuery)
		}
		w.Write([]byte(`{"analysisId":"an-2"}`))
	})

	client := New(server.URL, nil, &fakeTokens{token: "t"}, false, testLogger())
	if _, err := client.Submit(context.Background(), "ORG", map[string]any{}); err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
}

func TestSubmit_EmptyAnalysisID(t *testing.T) {
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK"}`))
	})

	client := New(server.URL, nil, &fakeTokens{token: "t"}, false, testLogger())
	if _, err := client.Submit(context.Background(), "ORG", map[string]any{}); err == nil {
		t.Fatal("Submit() не вернул ошибку при пустом analysisId")
	}
}

func TestAPIError_MessageFolded(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"json message", `{"message":"Duplicate analysis","errorId":"x"}`, "Duplicate analysis"},
		{"plain text", "upstream failure\n", "upstream failure"},
		{"пустое тело", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, tt.body)
			})

			client := New(server.URL, nil, &fakeTokens{token: "t"}, false, testLogger())
			_, err := client.Submit(context.Background(), "ORG", map[string]any{})

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("ошибка = %v, ожидался *APIError", err)
			}
			if apiErr.StatusCode != http.StatusConflict {
				t.Errorf("StatusCode = %d, ожидался 409", apiErr.StatusCode)
			}
			if apiErr.Message != tt.message {
				t.Errorf("Message = %q, ожидался %q", apiErr.Message, tt.message)
			}
			if apiErr.Op != "submit" {
				t.Errorf("Op = %q, ожидался submit", apiErr.Op)
			}
		})
	}
}

func TestUnauthorized_InvalidatesToken(t *testing.T) {
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	tokens := &fakeTokens{token: "expired"}
	client := New(server.URL, nil, tokens, false, testLogger())
	if err := client.Publish(context.Background(), "ORG", "an-1"); err == nil {
		t.Fatal("Publish() не вернул ошибку при 401")
	}
	if tokens.invalidated != 1 {
		t.Errorf("Invalidate() вызван %d раз, ожидался 1", tokens.invalidated)
	}
}

func TestTokenError(t *testing.T) {
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("запрос не должен уходить без токена")
	})

	client := New(server.URL, nil, &fakeTokens{err: errors.New("keycloak down")}, false, testLogger())
	if _, err := client.GetAnalysis(context.Background(), "ORG", "an-1"); err == nil {
		t.Fatal("GetAnalysis() не вернул ошибку при ошибке токена")
	}
}

func TestGetAnalysisAndListFiles(t *testing.T) {
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/studies/ORG/analysis/an-1":
			w.Write([]byte(`{"analysisId":"an-1","analysisState":"PUBLISHED","files":[{"objectId":"obj-1","fileName":"S1-R1.fastq.gz","fileMd5sum":"abc"}]}`))
		case "/studies/ORG/analysis/an-1/files":
			w.Write([]byte(`[{"objectId":"obj-1","fileName":"S1-R1.fastq.gz","fileMd5sum":"abc","fileSize":12}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	client := New(server.URL, nil, &fakeTokens{token: "t"}, false, testLogger())

	analysis, err := client.GetAnalysis(context.Background(), "ORG", "an-1")
	if err != nil {
		t.Fatalf("GetAnalysis() ошибка: %v", err)
	}
	if analysis.AnalysisState != AnalysisStatePublished {
		t.Errorf("AnalysisState = %q, ожидался PUBLISHED", analysis.AnalysisState)
	}

	files, err := client.ListFiles(context.Background(), "ORG", "an-1")
	if err != nil {
		t.Fatalf("ListFiles() ошибка: %v", err)
	}
	want := []AnalysisFile{{ObjectID: "obj-1", FileName: "S1-R1.fastq.gz", FileMd5sum: "abc", FileSize: 12}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("ListFiles() mismatch (-want +got):\n%s", diff)
	}

	if _, err := client.GetAnalysis(context.Background(), "ORG", "missing"); err == nil {
		t.Error("GetAnalysis(missing) не вернул ошибку")
	}
}

func TestPublishAndSuppress(t *testing.T) {
	var calls []string
	server := setupMockAnalysis(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	client := New(server.URL, nil, &fakeTokens{token: "t"}, false, testLogger())
	if err := client.Publish(context.Background(), "ORG", "an-1"); err != nil {
		t.Fatalf("Publish() ошибка: %v", err)
	}
	if err := client.Suppress(context.Background(), "ORG", "an-2"); err != nil {
		t.Fatalf("Suppress() ошибка: %v", err)
	}

	want := []string{
		"PUT /studies/ORG/analysis/publish/an-1",
		"PUT /studies/ORG/analysis/suppress/an-2",
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("вызовы mismatch (-want +got):\n%s", diff)
	}
}

func TestNewHTTPClient_BadCACert(t *testing.T) {
	if _, err := NewHTTPClient("/nonexistent/ca.pem", 0, testLogger()); err == nil {
		t.Error("NewHTTPClient() не вернул ошибку для отсутствующего CA")
	}
}
