package imagestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	pkgerrors "github.com/angelmondragon/sheerent-backend/pkg/errors"
)

// Local writes images beneath a root directory served under PublicPrefix.
type Local struct {
	root   string
	prefix string
}

func NewLocal(root, publicPrefix string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local image root is required")
	}
	prefix := "/" + strings.Trim(publicPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	return &Local{root: root, prefix: prefix}, nil
}

func (l *Local) Save(ctx context.Context, key string, data []byte) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	target := filepath.Join(l.root, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create image directory")
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "write image")
	}
	return path.Join(l.prefix+"/", cleaned), nil
}

// Read accepts either a reference returned by Save or a key relative to the root.
func (l *Local) Read(ctx context.Context, ref string) ([]byte, error) {
	key := strings.TrimSpace(ref)
	if l.prefix != "" {
		key = strings.TrimPrefix(key, l.prefix+"/")
	}
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, notFound(ref)
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(cleaned)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(ref)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read image")
	}
	return data, nil
}
