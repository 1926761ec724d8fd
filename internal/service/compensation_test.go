package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCompensationLog_UnwindReverseOrder(t *testing.T) {
	var order []string
	clog := newCompensationLog(testLogger())
	for _, name := range []string{"registry", "analysis-1", "analysis-2"} {
		clog.push(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := clog.unwind(context.Background()); err != nil {
		t.Fatalf("unwind() ошибка: %v", err)
	}
	want := []string{"analysis-2", "analysis-1", "registry"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("порядок отката mismatch (-want +got):\n%s", diff)
	}
	if clog.len() != 0 {
		t.Errorf("len() = %d после unwind, ожидался 0", clog.len())
	}
}

func TestCompensationLog_ContinuesAfterError(t *testing.T) {
	errSuppress := errors.New("suppress failed")
	var ran []string
	clog := newCompensationLog(testLogger())
	clog.push("registry", func(ctx context.Context) error {
		ran = append(ran, "registry")
		return nil
	})
	clog.push("analysis", func(ctx context.Context) error {
		ran = append(ran, "analysis")
		return errSuppress
	})

	err := clog.unwind(context.Background())
	if !errors.Is(err, errSuppress) {
		t.Errorf("unwind() ошибка = %v, ожидалась %v", err, errSuppress)
	}
	if diff := cmp.Diff([]string{"analysis", "registry"}, ran); diff != "" {
		t.Errorf("выполненные действия mismatch (-want +got):\n%s", diff)
	}
}

func TestCompensationLog_DetachedFromCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr error
	clog := newCompensationLog(testLogger())
	clog.push("registry", func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	})

	if err := clog.unwind(ctx); err != nil {
		t.Fatalf("unwind() ошибка: %v", err)
	}
	if ctxErr != nil {
		t.Errorf("контекст отката отменён: %v", ctxErr)
	}
}

// TestCompensationLog_EmptyIsNotRollback — пустой журнал не считается откатом.
func TestCompensationLog_EmptyIsNotRollback(t *testing.T) {
	before := testutil.ToFloat64(rollbacksTotal)

	if err := newCompensationLog(testLogger()).unwind(context.Background()); err != nil {
		t.Fatalf("unwind() ошибка: %v", err)
	}
	if got := testutil.ToFloat64(rollbacksTotal); got != before {
		t.Errorf("sm_rollbacks_total = %v, ожидалось %v", got, before)
	}

	clog := newCompensationLog(testLogger())
	clog.push("registry", func(context.Context) error { return nil })
	if err := clog.unwind(context.Background()); err != nil {
		t.Fatalf("unwind() ошибка: %v", err)
	}
	if got := testutil.ToFloat64(rollbacksTotal); got != before+1 {
		t.Errorf("sm_rollbacks_total = %v, ожидалось %v", got, before+1)
	}
}
