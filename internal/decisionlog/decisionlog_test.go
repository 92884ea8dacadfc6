package decisionlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterOutputSchema(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "paper")

	require.NoError(t, l.Write("SPY", KindEntry, "accepted:hold_bars", 85, "A", 1.05))
	require.NoError(t, l.Write("QQQ", KindBlock, "stale_nbbo", 0, "", 0))

	sc := bufio.NewScanner(&buf)
	require.True(t, sc.Scan())
	var rec Record
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, "paper", rec.Phase)
	assert.Equal(t, "SPY", rec.Symbol)
	assert.Equal(t, KindEntry, rec.Decision)
	assert.Equal(t, 85.0, rec.Score)
	assert.Equal(t, "A", rec.Grade)
	assert.Equal(t, 1.05, rec.Price)
	assert.False(t, rec.TS.IsZero())

	require.True(t, sc.Scan())
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, KindBlock, rec.Decision)
	assert.Equal(t, "stale_nbbo", rec.Reason)
}

func TestDailyFileRoll(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "shadow")
	require.NoError(t, err)
	defer l.Close()

	day1 := time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day1 }
	require.NoError(t, l.Write("SPY", KindHold, "pending:hold_bars=1", 0, "", 0))

	l.now = func() time.Time { return day1.Add(6 * time.Hour) } // crosses midnight UTC
	require.NoError(t, l.Write("SPY", KindHold, "pending:hold_bars=2", 0, "", 0))

	for _, day := range []string{"20260831", "20260901"} {
		data, err := os.ReadFile(filepath.Join(dir, "decisions-"+day+".jsonl"))
		require.NoError(t, err)
		assert.Equal(t, 1, bytes.Count(data, []byte("\n")), day)
	}
}

func TestAppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, "live")
	require.NoError(t, err)
	require.NoError(t, l.Write("SPY", KindExit, "trail_stop", 0, "", 1.50))
	require.NoError(t, l.Close())

	l2, err := New(dir, "live")
	require.NoError(t, err)
	require.NoError(t, l2.Write("SPY", KindEntry, "ok", 70, "A", 1.00))
	require.NoError(t, l2.Close())

	files, err := filepath.Glob(filepath.Join(dir, "decisions-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}
