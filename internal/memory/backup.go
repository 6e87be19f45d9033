package memory

import (
	"context"
	"log/slog"
	"time"
)

// Archiver stores point-in-time copies of the memory document off-box.
type Archiver interface {
	Name() string
	Archive(ctx context.Context, doc Document) error
	Close() error
}

// RunBackups exports the store every interval and hands the snapshot to each
// archiver until ctx is cancelled. Failures are logged and never stop the loop.
func RunBackups(ctx context.Context, s *Store, interval time.Duration, logger *slog.Logger, archivers ...Archiver) {
	if len(archivers) == 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			BackupOnce(ctx, s, logger, archivers...)
		}
	}
}

// BackupOnce takes one snapshot and archives it everywhere. It returns the
// number of archivers that succeeded.
func BackupOnce(ctx context.Context, s *Store, logger *slog.Logger, archivers ...Archiver) int {
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := s.ExportAll(ctx)
	if err != nil {
		logger.Error("memory backup export failed", "error", err)
		return 0
	}
	ok := 0
	for _, a := range archivers {
		if err := a.Archive(ctx, doc); err != nil {
			logger.Error("memory backup failed", "archiver", a.Name(), "error", err)
			continue
		}
		ok++
		logger.Info("memory backup stored", "archiver", a.Name(),
			"people", len(doc.People), "interactions", len(doc.Interactions))
	}
	return ok
}
