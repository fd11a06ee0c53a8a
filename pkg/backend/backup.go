package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// BackupPath returns where the backup of a store file is written:
// "<stem>_backup<ext>" next to it.
func BackupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_backup" + ext
}

// Backup copies the store to BackupPath. In-memory stores and stores whose
// file does not exist yet have nothing to back up.
func (b *Backend) Backup(ctx context.Context) error {
	if isMemory(b.opts.Path) {
		return nil
	}
	if _, err := os.Stat(b.opts.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dsierr.Wrap(err, dsierr.KindIO, "cannot stat store").WithContext("path", b.opts.Path)
	}
	dst := BackupPath(b.opts.Path)
	if err := b.dialect.Backup(ctx, b.db, b.opts.Path, dst); err != nil {
		return dsierr.Wrap(err, dsierr.KindIO, "backup failed").WithContext("path", dst)
	}
	log.WithField("path", dst).Debug("store backed up")
	return nil
}

// backup runs Backup when the option is set.
func (b *Backend) backup(ctx context.Context) error {
	if !b.opts.Backup {
		return nil
	}
	return b.Backup(ctx)
}
