package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/bigkaa/goartstore/submission-module/internal/domain/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recorder — mock индексатора, запоминающий пути запросов.
type recorder struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec.mu.Lock()
	rec.paths = append(rec.paths, r.Method+" "+r.URL.Path)
	fail := rec.fail[r.URL.Path]
	rec.mu.Unlock()
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (rec *recorder) calls() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.paths...)
}

func TestEnqueue_SerialWithErrorsContinuing(t *testing.T) {
	rec := &recorder{fail: map[string]bool{
		"/index/repository/repoA/organization/ORG/id/SYS-2": true,
	}}
	server := httptest.NewServer(rec)
	defer server.Close()

	ix := New(server.URL, map[int]string{1: "repoA"}, time.Millisecond, time.Second, testLogger())

	records := []model.SubmittedRecord{
		{SystemID: "SYS-1"},
		{SystemID: "SYS-2"},
		{SystemID: "SYS-3", Organization: "OTHER"},
	}

	// Отменённый контекст запроса не должен прерывать индексацию.
	ctx, cancel := context.WithCancel(context.Background())
	ix.Enqueue(ctx, 1, "ORG", records)
	cancel()
	if err := ix.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() ошибка: %v", err)
	}

	want := []string{
		"POST /index/repository/repoA/organization/ORG/id/SYS-1",
		"POST /index/repository/repoA/organization/ORG/id/SYS-2",
		"POST /index/repository/repoA/organization/OTHER/id/SYS-3",
	}
	if diff := cmp.Diff(want, rec.calls()); diff != "" {
		t.Errorf("вызовы индексатора mismatch (-want +got):\n%s", diff)
	}
}

func TestEnqueue_DelayBetweenCalls(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	delay := 30 * time.Millisecond
	ix := New(server.URL, map[int]string{1: "repoA"}, delay, time.Second, testLogger())

	start := time.Now()
	ix.Enqueue(context.Background(), 1, "ORG", []model.SubmittedRecord{{SystemID: "A"}, {SystemID: "B"}, {SystemID: "C"}})
	if err := ix.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() ошибка: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Errorf("индексация заняла %v, ожидалось не меньше %v", elapsed, 2*delay)
	}
}

func TestEnqueue_UnknownCategory(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	ix := New(server.URL, map[int]string{1: "repoA"}, 0, time.Second, testLogger())
	ix.Enqueue(context.Background(), 2, "ORG", []model.SubmittedRecord{{SystemID: "A"}})
	ix.Enqueue(context.Background(), 1, "ORG", nil)
	ix.Close()

	if calls := rec.calls(); len(calls) != 0 {
		t.Errorf("вызовы = %v, ожидалось ни одного", calls)
	}
}

func TestIndex_EscapesPath(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	ix := New(server.URL+"/", nil, 0, time.Second, testLogger())
	if err := ix.Index(context.Background(), "repo", "ORG 1", "S/1"); err != nil {
		t.Fatalf("Index() ошибка: %v", err)
	}
	ix.Close()
	calls := rec.calls()
	if len(calls) != 1 || calls[0] != "POST /index/repository/repo/organization/ORG 1/id/S/1" {
		t.Errorf("вызовы = %v", calls)
	}
}

func backlog(n int) []model.SubmittedRecord {
	records := make([]model.SubmittedRecord, n)
	for i := range records {
		records[i] = model.SubmittedRecord{SystemID: fmt.Sprintf("SYS-%d", i+1)}
	}
	return records
}

// TestClose_InterruptsDelay — Close не ждёт паузы между вызовами всей очереди.
func TestClose_InterruptsDelay(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	ix := New(server.URL, map[int]string{1: "repoA"}, 500*time.Millisecond, time.Second, testLogger())
	ix.Enqueue(context.Background(), 1, "ORG", backlog(8))

	// Первый вызов уходит без паузы.
	deadline := time.Now().Add(time.Second)
	for len(rec.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	ix.Close()
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Close() занял %v, ожидалось прерывание паузы", elapsed)
	}
	if calls := rec.calls(); len(calls) != 1 {
		t.Errorf("вызовов = %d, ожидался 1 до остановки: %v", len(calls), calls)
	}
}

// TestShutdown_Deadline — по истечении ctx оставшиеся записи не отправляются.
func TestShutdown_Deadline(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	ix := New(server.URL, map[int]string{1: "repoA"}, 200*time.Millisecond, time.Second, testLogger())
	ix.Enqueue(context.Background(), 1, "ORG", backlog(8))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ix.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() = %v, ожидался context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown() занял %v", elapsed)
	}
	if calls := rec.calls(); len(calls) == 0 || len(calls) >= 8 {
		t.Errorf("вызовов = %d, ожидалась частичная отправка", len(calls))
	}
}

func TestEnqueue_AfterClose(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	ix := New(server.URL, map[int]string{1: "repoA"}, 0, time.Second, testLogger())
	ix.Close()
	ix.Enqueue(context.Background(), 1, "ORG", backlog(2))

	if calls := rec.calls(); len(calls) != 0 {
		t.Errorf("вызовы = %v, ожидалось ни одного после Close", calls)
	}
}
