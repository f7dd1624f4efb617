package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/coursebook/internal/metrics"
)

// mockPurger はSessionPurgerのモック実装。
type mockPurger struct {
	mu      sync.Mutex
	calls   int
	deleted int64
	err     error
}

func (m *mockPurger) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.deleted, m.err
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingCollector は削除件数の記録を保持する。
type recordingCollector struct {
	metrics.Nop
	purged []int64
}

func (c *recordingCollector) RecordSessionsPurged(n int64) {
	c.purged = append(c.purged, n)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestCleanupJob_Run_DeletesAndRecords(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{deleted: 5}
	collector := &recordingCollector{}
	job := NewCleanupJob(purger, newTestLogger(&buf), collector)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if purger.callCount() != 1 {
		t.Errorf("DeleteExpired calls = %d, want 1", purger.callCount())
	}
	if len(collector.purged) != 1 || collector.purged[0] != 5 {
		t.Errorf("purged = %v, want [5]", collector.purged)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログ出力がJSON形式ではない: %v\nraw: %s", err, buf.String())
	}
	if entry["deleted_count"] != float64(5) {
		t.Errorf("deleted_count = %v, want 5", entry["deleted_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms がログに含まれていない")
	}
}

func TestCleanupJob_Run_NothingToDeleteIsNotError(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPurger{}, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}

func TestCleanupJob_Run_ReturnsWrappedError(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	collector := &recordingCollector{}
	job := NewCleanupJob(&mockPurger{err: dbErr}, newTestLogger(&buf), collector)

	err := job.Run(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("Run() error = %v, want wrapping %v", err, dbErr)
	}
	if len(collector.purged) != 0 {
		t.Errorf("purged = %v, nothing should be recorded on failure", collector.purged)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := NewCleanupJob(purger, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for purger.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("DeleteExpired calls = %d, want >= 2", purger.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start should return after context cancel")
	}
}

func TestCleanupJob_Start_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{err: errors.New("temporary")}
	job := NewCleanupJob(purger, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go job.Start(ctx, 5*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for purger.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, job should keep running after failures", purger.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
