// Package imagestore persists rental inspection images.
package imagestore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/angelmondragon/sheerent-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"github.com/google/uuid"
)

// Store saves image bytes under a key and reads them back by the returned reference.
type Store interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, ref string) ([]byte, error)
}

// AfterImageKey is deterministic per rental so a retried return overwrites
// the same object instead of leaking a second one.
func AfterImageKey(itemID, rentalID uuid.UUID, start time.Time) string {
	return path.Join(fmt.Sprintf("%s_%s_%s", itemID, rentalID, start.Format("20060102")), "after", "after.jpg")
}

// New builds the configured store driver.
func New(ctx context.Context, cfg config.StorageConfig, gcp config.GCPConfig, logg *logger.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.StorageDriverGCS:
		return NewGCS(ctx, cfg.BucketName, gcp, logg)
	case config.StorageDriverLocal, "":
		return NewLocal(cfg.LocalRoot, cfg.PublicPrefix)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

func notFound(ref string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "image not found").WithDetails(map[string]any{"ref": ref})
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "image key is required")
	}
	return cleaned, nil
}
