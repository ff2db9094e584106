// Package backup snapshots the trading database to local disk and,
// when a bucket is configured, mirrors each snapshot to S3.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/theta/internal/database"
)

const (
	// localRetention is how long local snapshots are kept before rotation.
	localRetention = 30 * 24 * time.Hour

	uploadTimeout = 5 * time.Minute
)

// uploader is the subset of the S3 transfer manager the service uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Credentials optionally pins static S3 credentials. When empty the
// default AWS credential chain is used.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Service creates verified database snapshots and ships them offsite.
type Service struct {
	db        *database.DB
	backupDir string
	bucket    string
	region    string
	creds     Credentials
	uploader  uploader
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a backup service. The bucket may be empty, in which case
// snapshots stay local only.
func New(db *database.DB, backupDir, bucket, region string, creds Credentials, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		backupDir: backupDir,
		bucket:    bucket,
		region:    region,
		creds:     creds,
		now:       time.Now,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// Name implements scheduler.Job.
func (s *Service) Name() string { return "nightly-backup" }

// Run implements scheduler.Job. It snapshots the database locally,
// verifies the copy, rotates stale snapshots, and uploads to S3 when
// a bucket is configured.
func (s *Service) Run() error {
	start := s.now()

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Fold WAL pages into the main file so the snapshot is self-contained.
	if err := s.db.WALCheckpoint("TRUNCATE"); err != nil {
		s.log.Warn().Err(err).Msg("WAL checkpoint before backup failed")
	}

	path := filepath.Join(s.backupDir, s.snapshotName())
	if err := s.snapshot(path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}

	if err := s.verify(path); err != nil {
		os.Remove(path)
		return fmt.Errorf("backup verification failed: %w", err)
	}

	if err := s.rotate(); err != nil {
		s.log.Error().Err(err).Msg("Failed to rotate old backups")
		// Don't fail - the snapshot itself succeeded
	}

	if s.bucket != "" {
		if err := s.uploadToS3(path); err != nil {
			return fmt.Errorf("failed to upload backup to S3: %w", err)
		}
	} else {
		s.log.Debug().Msg("No backup bucket configured, keeping snapshot local only")
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("backup_path", path).
		Bool("uploaded", s.bucket != "").
		Msg("Backup completed")

	return nil
}

// snapshotName is the local file name for today's snapshot.
func (s *Service) snapshotName() string {
	return fmt.Sprintf("trader_%s.db", s.now().Format("2006-01-02"))
}

// ObjectKey is the S3 key the next upload goes under. A random suffix
// keeps reruns on the same day from clobbering each other.
func (s *Service) ObjectKey() string {
	return fmt.Sprintf("backups/trader-%s-%s.db", s.now().Format("2006-01-02"), uuid.New().String()[:8])
}

// snapshot copies the database using VACUUM INTO, which produces a
// fresh compacted copy without WAL sidecar files.
func (s *Service) snapshot(path string) error {
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(path)

	if _, err := s.db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", path)); err != nil {
		return fmt.Errorf("VACUUM INTO failed: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}

	s.log.Debug().
		Str("backup_path", path).
		Float64("size_mb", float64(info.Size())/1024/1024).
		Msg("Snapshot created")

	return nil
}

// verify opens the snapshot and runs an integrity check against it.
func (s *Service) verify(path string) error {
	backupDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// rotate deletes local snapshots older than the retention window.
func (s *Service) rotate() error {
	cutoff := s.now().Add(-localRetention)

	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.backupDir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.log.Warn().Str("path", path).Err(err).Msg("Failed to delete old backup")
			} else {
				s.log.Debug().Str("path", path).Msg("Deleted old backup")
			}
		}
	}

	return nil
}

// uploadToS3 streams the snapshot to the configured bucket.
func (s *Service) uploadToS3(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	up, err := s.s3Uploader(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	key := s.ObjectKey()
	if _, err := up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("S3 upload failed: %w", err)
	}

	s.log.Info().
		Str("bucket", s.bucket).
		Str("key", key).
		Msg("Snapshot uploaded to S3")

	return nil
}

// s3Uploader lazily builds the transfer manager so the AWS credential
// chain is only touched when a bucket is configured.
func (s *Service) s3Uploader(ctx context.Context) (uploader, error) {
	if s.uploader != nil {
		return s.uploader, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s.region)}
	if s.creds.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.creds.AccessKey, s.creds.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.uploader = manager.NewUploader(s3.NewFromConfig(cfg))
	return s.uploader, nil
}
