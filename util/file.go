package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// maxJsonFileSize bounds config and state files read through ReadJson
const maxJsonFileSize = 1 << 20

// WriteBytesWithRestrictedPermission replaces file with bs through a temp file
// in the same directory. The directory is created when missing and limited to
// the current user.
func WriteBytesWithRestrictedPermission(ctx context.Context, file string, bs []byte) error {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	if err := EnforcePermission(file); err != nil {
		return fmt.Errorf("enforce permission: %w", err)
	}

	return replaceFile(ctx, dir, file, bs)
}

// replaceFile leaves either the old or the new content at file, never a mix
func replaceFile(ctx context.Context, dir, file string, bs []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(file)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	renamed := false
	defer func() {
		if renamed {
			return
		}
		_ = tmp.Close()
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Debugf("failed to remove temp file %s: %v", tmpName, err)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if _, err := tmp.Write(bs); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if err := os.Rename(tmpName, file); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpName, file, err)
	}
	renamed = true
	return nil
}

// ReadJson decodes the JSON file into res and returns res. Files larger than
// 1 MiB are refused.
func ReadJson(file string, res any) (any, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Debugf("failed to close %s: %v", file, err)
		}
	}()

	bs, err := io.ReadAll(io.LimitReader(f, maxJsonFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	if len(bs) > maxJsonFileSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", file, maxJsonFileSize)
	}

	if err := json.Unmarshal(bs, res); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	return res, nil
}

// FileExists reports whether path can be stat'ed
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
