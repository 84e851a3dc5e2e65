package events

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/reliability"
)

// Manager emits audit records: it logs every event through zerolog, appends
// it msgpack-encoded to the run's append-only audit file, and optionally
// mirrors it into a queryable sqlite database.
type Manager struct {
	mu     sync.Mutex
	dir    string
	runID  string
	log    zerolog.Logger
	file   *os.File
	writer *bufio.Writer
	mirror *reliability.AuditMirror
}

// NewManager opens (creating if needed) today's audit log file under dir
// and returns a Manager that appends every emitted event to it.
func NewManager(dir string, runID string, log zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".mp")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Manager{
		dir:    dir,
		runID:  runID,
		log:    log.With().Str("component", "events").Logger(),
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// WithMirror attaches a sqlite audit mirror; every subsequent Emit also
// inserts a row there, in addition to the flat file it always writes to.
func (m *Manager) WithMirror(mirror *reliability.AuditMirror) *Manager {
	m.mirror = mirror
	return m
}

// Emit records a stage outcome both to the structured logger and the
// append-only audit file.
func (m *Manager) Emit(kind Kind, symbol, outcome string, payload map[string]interface{}) {
	rec := domain.AuditRecord{
		RunID:     m.runID,
		Symbol:    symbol,
		Stage:     string(kind),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Outcome:   outcome,
	}

	m.log.Info().
		Str("stage", string(kind)).
		Str("symbol", symbol).
		Str("outcome", outcome).
		Msg("event emitted")

	m.mu.Lock()
	defer m.mu.Unlock()
	line, err := msgpack.Marshal(rec)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to marshal audit record")
		return
	}
	if err := binary.Write(m.writer, binary.BigEndian, uint32(len(line))); err != nil {
		m.log.Error().Err(err).Msg("failed to append audit record length")
		return
	}
	if _, err := m.writer.Write(line); err != nil {
		m.log.Error().Err(err).Msg("failed to append audit record")
		return
	}
	_ = m.writer.Flush()

	m.mirror.Record(rec)
}

// EmitError is a convenience wrapper for KindErrorOccurred.
func (m *Manager) EmitError(symbol string, err error, context map[string]interface{}) {
	payload := context
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["error"] = err.Error()
	m.Emit(KindErrorOccurred, symbol, "error", payload)
}

// Close flushes and closes the underlying audit log file and mirror.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.writer.Flush()
	if m.mirror != nil {
		_ = m.mirror.Close()
	}
	return m.file.Close()
}
