package registryclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockRegistry создаёт mock Registry и клиент к нему.
func setupMockRegistry(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL+"/", "", 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestGetDictionary(t *testing.T) {
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dictionary/category/3" {
			t.Errorf("path = %q, ожидался /dictionary/category/3", r.URL.Path)
		}
		w.Write([]byte(`{
			"name": "clinical", "version": "1.2",
			"dictionary": [{
				"name": "sample",
				"fields": [
					{"name": "sample_id", "meta": {"displayName": "Sample ID"}, "restrictions": {"required": true}},
					{"name": "notes"}
				]
			}]
		}`))
	})

	dict, err := client.GetDictionary(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetDictionary() ошибка: %v", err)
	}

	want := &model.Dictionary{
		Name:    "clinical",
		Version: "1.2",
		Schemas: []model.Schema{{
			Name: "sample",
			Fields: []model.SchemaField{
				{Name: "sample_id", DisplayName: "Sample ID", Required: true},
				{Name: "notes"},
			},
		}},
	}
	if diff := cmp.Diff(want, dict); diff != "" {
		t.Errorf("GetDictionary() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetDictionary_NotFound(t *testing.T) {
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetDictionary(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDictionary() ошибка = %v, ожидалась ErrNotFound", err)
	}
}

func TestSubmitAndEdit(t *testing.T) {
	var methods []string
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.URL.Path != "/submission/category/1/data" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["entityName"] != "sample" || body["organization"] != "ORG" || body["username"] != "alice" {
			t.Errorf("тело запроса = %v", body)
		}
		if recs, _ := body["records"].([]any); len(recs) != 1 {
			t.Errorf("records = %v, ожидалась одна запись", body["records"])
		}
		w.Write([]byte(`{"status":"PROCESSING","submissionId":42,"description":"ok"}`))
	})

	req := SubmitRequest{
		CategoryID:   1,
		EntityName:   "sample",
		Organization: "ORG",
		Username:     "alice",
		Records:      []model.Record{{"sample_id": "S1"}},
	}

	resp, err := client.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
	if resp.Status != model.StatusProcessing || resp.SubmissionID == nil || *resp.SubmissionID != 42 {
		t.Errorf("Submit() = %+v, ожидался PROCESSING/42", resp)
	}

	if _, err := client.EditData(context.Background(), req); err != nil {
		t.Fatalf("EditData() ошибка: %v", err)
	}
	if diff := cmp.Diff([]string{http.MethodPost, http.MethodPut}, methods); diff != "" {
		t.Errorf("методы mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteActiveSubmission(t *testing.T) {
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/submission/42" {
			t.Errorf("запрос %s %s, ожидался DELETE /submission/42", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("username"); got != "alice smith" {
			t.Errorf("username = %q, ожидался 'alice smith'", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.DeleteActiveSubmission(context.Background(), 42, "alice smith"); err != nil {
		t.Fatalf("DeleteActiveSubmission() ошибка: %v", err)
	}
}

func TestGetSubmission(t *testing.T) {
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":7,"organization":"ORG","status":"VALID","dictionaryCategory":{"id":2,"name":"c"}}`))
	})

	sub, err := client.GetSubmission(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetSubmission() ошибка: %v", err)
	}
	if sub.ID != 7 || sub.Organization != "ORG" || sub.Status != model.SubmissionStatusValid || sub.CategoryID != 2 {
		t.Errorf("GetSubmission() = %+v", sub)
	}
	if sub.Raw["status"] != "VALID" {
		t.Errorf("Raw не содержит исходный ответ: %v", sub.Raw)
	}
}

func TestAPIError(t *testing.T) {
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"StatusConflict","message":"Submission is not VALID"}`))
	})

	_, err := client.CommitSubmission(context.Background(), 1, 7, "alice")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ошибка = %v, ожидался *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "Submission is not VALID" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestGetSubmittedData(t *testing.T) {
	client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/category/1/id/SYS-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"systemId":"SYS-1","data":{"sample_id":"S1"}}`))
	})

	data, err := client.GetSubmittedData(context.Background(), 1, "SYS-1")
	if err != nil {
		t.Fatalf("GetSubmittedData() ошибка: %v", err)
	}
	if data["systemId"] != "SYS-1" {
		t.Errorf("systemId = %v, ожидался SYS-1", data["systemId"])
	}
}

func TestCheckReady(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"доступен", http.StatusOK, "ok"},
		{"недоступен", http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupMockRegistry(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %q, ожидался /health", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			})
			if status, msg := client.CheckReady(); status != tt.want {
				t.Errorf("CheckReady() = %s (%s), ожидался %s", status, msg, tt.want)
			}
		})
	}
}
