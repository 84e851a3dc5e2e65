package reliability

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArchiveUploader_DisabledWithoutBucket(t *testing.T) {
	u, err := NewArchiveUploader(context.Background(), S3ArchiveConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestArchiveUploader_NilUploadIsNoop(t *testing.T) {
	var u *ArchiveUploader
	err := u.UploadRunArtifact(context.Background(), "health", "run-1", []byte("{}"))
	assert.NoError(t, err)
}
