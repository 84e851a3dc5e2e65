package reliability

import (
	"encoding/json"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/database"
	"github.com/tradecore/decision-core/internal/domain"
)

// AuditMirror writes every audit record into a local sqlite table alongside
// the msgpack-encoded flat file, so an operator can query run history with
// SQL instead of scanning log files.
type AuditMirror struct {
	db  *database.DB
	log zerolog.Logger
}

const auditMirrorSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	symbol     TEXT,
	stage      TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	payload    TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);

CREATE TABLE IF NOT EXISTS _database_health (
	checked_at              INTEGER NOT NULL,
	integrity_check_passed  INTEGER NOT NULL,
	size_bytes              INTEGER NOT NULL,
	wal_size_bytes          INTEGER NOT NULL,
	page_count              INTEGER NOT NULL,
	freelist_count          INTEGER NOT NULL,
	vacuum_performed        INTEGER NOT NULL DEFAULT 0
);
`

// NewAuditMirror opens (creating if needed) a sqlite database at
// dir/audit.db, under the ledger durability profile: the audit trail is
// append-only and fsyncs on every write.
func NewAuditMirror(dir string, log zerolog.Logger) (*AuditMirror, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "audit.db"),
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(auditMirrorSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &AuditMirror{db: db, log: log.With().Str("component", "audit_mirror").Logger()}, nil
}

// Record inserts one audit record. A failure is logged and swallowed: the
// mirror is a queryable convenience, not the audit trail of record (that is
// the flat file events.Manager always writes to).
func (m *AuditMirror) Record(rec domain.AuditRecord) {
	if m == nil {
		return
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = m.db.Exec(
		`INSERT INTO audit_events (run_id, symbol, stage, outcome, timestamp, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Symbol, rec.Stage, rec.Outcome, rec.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), string(payload),
	)
	if err != nil {
		m.log.Warn().Err(err).Str("run_id", rec.RunID).Msg("failed to mirror audit record")
	}
}

// Health returns a DatabaseHealthService over the mirror's sqlite
// connection, for wiring into the orchestrator's pre-market health check.
func (m *AuditMirror) Health() *DatabaseHealthService {
	if m == nil {
		return nil
	}
	return NewDatabaseHealthService(m.db, "audit", m.db.Path(), m.log)
}

// Close closes the underlying sqlite connection.
func (m *AuditMirror) Close() error {
	if m == nil {
		return nil
	}
	return m.db.Close()
}
