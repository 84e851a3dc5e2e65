package reliability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/domain"
)

func TestAuditMirror_RecordInsertsRow(t *testing.T) {
	dir := t.TempDir()
	mirror, err := NewAuditMirror(dir, zerolog.Nop())
	require.NoError(t, err)
	defer mirror.Close()

	mirror.Record(domain.AuditRecord{
		RunID:     "run-1",
		Symbol:    "SPY",
		Stage:     "run_started",
		Outcome:   "ok",
		Timestamp: time.Now().UTC(),
		Payload:   map[string]interface{}{"x": 1},
	})

	var count int
	require.NoError(t, mirror.db.Conn().QueryRow(`SELECT COUNT(*) FROM audit_events WHERE run_id = ?`, "run-1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestAuditMirror_NilRecordIsNoop(t *testing.T) {
	var m *AuditMirror
	m.Record(domain.AuditRecord{RunID: "run-2"})
}

func TestNewAuditMirror_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	mirror, err := NewAuditMirror(dir, zerolog.Nop())
	require.NoError(t, err)
	defer mirror.Close()

	_, err = os.Stat(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
}
