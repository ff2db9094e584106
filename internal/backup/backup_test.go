package backup

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/theta/internal/database"
)

type fakeUploader struct {
	inputs []*s3.PutObjectInput
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.inputs = append(f.inputs, input)
	return &manager.UploadOutput{}, nil
}

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "trader.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLocalOnly(t *testing.T) {
	db := testDB(t)
	backupDir := t.TempDir()

	svc := New(db, backupDir, "", "us-east-1", Credentials{}, zerolog.Nop())
	require.NoError(t, svc.Run())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^trader_\d{4}-\d{2}-\d{2}\.db$`, entries[0].Name())

	// Reruns replace the same-day snapshot instead of piling up.
	require.NoError(t, svc.Run())
	entries, err = os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunUploadsWhenBucketSet(t *testing.T) {
	db := testDB(t)
	backupDir := t.TempDir()

	fake := &fakeUploader{}
	svc := New(db, backupDir, "theta-backups", "us-east-1", Credentials{}, zerolog.Nop())
	svc.uploader = fake

	require.NoError(t, svc.Run())

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "theta-backups", *fake.inputs[0].Bucket)
	assert.Regexp(t, `^backups/trader-\d{4}-\d{2}-\d{2}-[0-9a-f]{8}\.db$`, *fake.inputs[0].Key)
}

func TestObjectKeyFormat(t *testing.T) {
	svc := New(nil, "", "b", "us-east-1", Credentials{}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 3, 2, 30, 0, 0, time.UTC) }

	key := svc.ObjectKey()
	assert.True(t, regexp.MustCompile(`^backups/trader-2026-03-03-[0-9a-f]{8}\.db$`).MatchString(key), key)

	// Suffix is random per call.
	assert.NotEqual(t, key, svc.ObjectKey())
}

func TestRotateDeletesStaleSnapshots(t *testing.T) {
	backupDir := t.TempDir()

	old := filepath.Join(backupDir, "trader_2025-01-01.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	stale := time.Now().Add(-45 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	fresh := filepath.Join(backupDir, "trader_2026-08-25.db")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

	svc := New(nil, backupDir, "", "us-east-1", Credentials{}, zerolog.Nop())
	require.NoError(t, svc.rotate())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
