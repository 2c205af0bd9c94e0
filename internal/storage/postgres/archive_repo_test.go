package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordUUID(t *testing.T) {
	assert.Equal(t, "abc==", recordUUID([]byte(`{"uuid":"abc==","events":2}`)))
	assert.Equal(t, "", recordUUID([]byte(`{"events":2}`)))
	assert.Equal(t, "", recordUUID([]byte(`not json`)))
}

func TestRecordHashStable(t *testing.T) {
	a := recordHash([]byte(`{"uuid":"a"}`))
	assert.Len(t, a, 64)
	assert.Equal(t, a, recordHash([]byte(`{"uuid":"a"}`)))
	assert.NotEqual(t, a, recordHash([]byte(`{"uuid":"b"}`)))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/000001_archive_records.up.sql",
		"migrations/000001_archive_records.down.sql",
	}, files)
}
