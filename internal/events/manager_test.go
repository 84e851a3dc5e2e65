package events

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradecore/decision-core/internal/domain"
)

func TestManager_EmitWritesLengthPrefixedMsgpackRecords(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "run-1", zerolog.Nop())
	require.NoError(t, err)

	mgr.Emit(KindRunStarted, "SPY", "ok", map[string]interface{}{"k": "v"})
	mgr.Emit(KindErrorOccurred, "QQQ", "fatal", nil)
	require.NoError(t, mgr.Close())

	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".mp")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []domain.AuditRecord
	for len(data) > 0 {
		require.True(t, len(data) >= 4)
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		require.True(t, len(data) >= int(n))
		var rec domain.AuditRecord
		require.NoError(t, msgpack.Unmarshal(data[:n], &rec))
		records = append(records, rec)
		data = data[n:]
	}

	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "SPY", records[0].Symbol)
	assert.Equal(t, string(KindRunStarted), records[0].Stage)
	assert.Equal(t, "QQQ", records[1].Symbol)
}

func TestManager_EmitErrorAddsErrorToPayload(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "run-2", zerolog.Nop())
	require.NoError(t, err)
	mgr.EmitError("SPY", assertErr{"boom"}, nil)
	require.NoError(t, mgr.Close())

	data, err := os.ReadFile(filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".mp"))
	require.NoError(t, err)
	require.True(t, len(data) >= 4)
	n := binary.BigEndian.Uint32(data[:4])
	require.True(t, len(data[4:]) >= int(n))
	var rec domain.AuditRecord
	require.NoError(t, msgpack.Unmarshal(data[4:4+n], &rec))
	assert.Equal(t, string(KindErrorOccurred), rec.Stage)
	assert.Equal(t, "boom", rec.Payload["error"])
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
