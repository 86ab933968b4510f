package console

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cristianoliveira/job-intray/internal/colors"
	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureOutput(t *testing.T) (*syncBuffer, *syncBuffer) {
	t.Helper()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	colors.SetOutput(out, errOut)
	t.Cleanup(func() { colors.SetOutput(nil, nil) })
	return out, errOut
}

func TestDescribe(t *testing.T) {
	store := notification.NewStore()
	defer store.Close()
	events, cancel := store.Subscribe()
	defer cancel()

	store.ShowSuccess("Saved")
	nid := store.ShowJobProgress("Bank sync…", "j1", "plaid-sync")
	store.ResolveJob("j1", "plaid-sync", nid, "Bank sync complete", notification.SeveritySuccess)
	store.Remove(nid)

	var lines []Line
	for i := 0; i < 4; i++ {
		ev := <-events
		if l, ok := Describe(ev); ok {
			lines = append(lines, l)
		}
	}
	require.Len(t, lines, 3)
	assert.Equal(t, Line{Severity: notification.SeveritySuccess, Text: "Saved"}, lines[0])
	assert.Equal(t, Line{Severity: notification.SeverityInfo, Text: "Bank sync…", Progress: true}, lines[1])
	assert.Equal(t, Line{Severity: notification.SeveritySuccess, Text: "Bank sync complete"}, lines[2])
}

func TestPrint(t *testing.T) {
	out, errOut := captureOutput(t)

	Print(Line{Severity: notification.SeveritySuccess, Text: "done"})
	Print(Line{Severity: notification.SeverityError, Text: "broken"})
	Print(Line{Severity: notification.SeverityWarning, Text: "careful"})
	Print(Line{Severity: notification.SeverityInfo, Text: "fyi"})
	Print(Line{Severity: notification.SeverityInfo, Text: "working", Progress: true})

	assert.Contains(t, out.String(), "done")
	assert.Contains(t, out.String(), "fyi")
	assert.Contains(t, errOut.String(), "Error:")
	assert.Contains(t, errOut.String(), "broken")
	assert.Contains(t, errOut.String(), "Warning:")
	assert.Contains(t, errOut.String(), "working")
}

func TestPrinterSkipsRepeats(t *testing.T) {
	out, errOut := captureOutput(t)
	store := notification.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPrinter(store)
	defer p.Close()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	store.ShowInfo("ping")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ping")
	}, time.Second, 10*time.Millisecond)

	nid := store.ShowJobProgress("Bulk delete…", "j1", "bulk-delete")
	store.ReportProgress("j1", "bulk-delete", nid, "Bulk delete: deleting")
	store.ResolveJob("j1", "bulk-delete", nid, "Bulk delete complete: 2 deleted", notification.SeveritySuccess)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Bulk delete complete: 2 deleted")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, strings.Count(errOut.String(), "Bulk delete: deleting"))

	store.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("printer did not stop after the store closed")
	}
}

func TestPrinterDrainsAfterClose(t *testing.T) {
	out, _ := captureOutput(t)
	store := notification.NewStore()

	p := NewPrinter(store)
	defer p.Close()
	store.ShowSuccess("first")
	store.ShowSuccess("second")
	store.Close()

	p.Run(context.Background())
	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "second")
}
