package reliability

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/decision-core/internal/database"
)

func TestDatabaseHealthService_CheckAndRecoverPassesOnHealthyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileLedger, Name: "audit"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(auditMirrorSchema))

	svc := NewDatabaseHealthService(db, "audit", path, zerolog.Nop())
	assert.NoError(t, svc.CheckAndRecover())

	metrics, err := svc.GetMetrics()
	require.NoError(t, err)
	assert.Equal(t, "audit", metrics.Name)
	assert.True(t, metrics.IntegrityCheckPassed)
}
