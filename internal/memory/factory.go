package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// BackupConfig selects which archivers are enabled. Empty fields disable
// the corresponding sink.
type BackupConfig struct {
	DatabaseURL string
	S3Bucket    string
	S3Prefix    string
}

// NewArchivers builds every configured archiver. loadAWS is only invoked when
// an S3 bucket is configured. A sink that fails to open is reported in the
// joined error while the ones that did open are still returned.
func NewArchivers(ctx context.Context, cfg BackupConfig, loadAWS func(context.Context) (aws.Config, error)) ([]Archiver, error) {
	var (
		out  []Archiver
		errs []error
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := NewPostgresArchiver(ctx, cfg.DatabaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("postgres archiver: %w", err))
		} else {
			out = append(out, pg)
		}
	}
	if strings.TrimSpace(cfg.S3Bucket) != "" && loadAWS != nil {
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("s3 archiver: %w", err))
		} else {
			out = append(out, NewS3Archiver(awsCfg, cfg.S3Bucket, cfg.S3Prefix))
		}
	}
	return out, errors.Join(errs...)
}

// CloseAll closes every archiver, ignoring errors.
func CloseAll(as []Archiver) {
	for _, a := range as {
		_ = a.Close()
	}
}
