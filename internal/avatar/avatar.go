// Package avatar checks uploaded avatar images against the configured
// ceilings and stores accepted files under the avatar directory.
//
// Only the image header is decoded (format and dimensions); actual pixel
// decoding stays with the external image pipeline.
package avatar

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	// Register header decoders for the formats a deployment may allow.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/tbourn/go-social-backend/internal/apperr"
)

// Limits are the acceptance ceilings for uploaded avatars.
type Limits struct {
	MaxBytes  int
	MaxWidth  int
	MaxHeight int
	Formats   []string // image.DecodeConfig format names, e.g. "jpeg"
}

// Inspect validates raw avatar bytes against limits and returns the detected
// format name. Oversized payloads fail with apperr.ErrPayloadTooLarge; an
// unreadable header, disallowed format or excessive dimensions fail as an
// invalid "file" parameter.
func Inspect(raw []byte, limits Limits) (format string, err error) {
	if len(raw) > limits.MaxBytes {
		return "", apperr.ErrPayloadTooLarge
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", apperr.InvalidParameter("file")
	}
	allowed := false
	for _, f := range limits.Formats {
		if strings.EqualFold(f, format) {
			allowed = true
			break
		}
	}
	if !allowed || cfg.Width > limits.MaxWidth || cfg.Height > limits.MaxHeight {
		return "", apperr.InvalidParameter("file")
	}
	return format, nil
}

// Store writes an accepted avatar to dir as <username>.<ext> and removes any
// previous file the user had under a different extension. The upload is
// staged as a temporary file in tmpDir and renamed into place, so tmpDir must
// live on the same filesystem as dir; an empty tmpDir means the system
// default. It returns the stored file name.
func Store(dir, tmpDir, username, format string, raw []byte) (string, error) {
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	name := username + "." + ext

	tmp, err := os.CreateTemp(tmpDir, "avatar-*")
	if err != nil {
		return "", fmt.Errorf("stage avatar: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stage avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stage avatar: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stage avatar: %w", err)
	}

	old, err := filepath.Glob(filepath.Join(dir, username+".*"))
	if err == nil {
		for _, p := range old {
			if filepath.Base(p) != name {
				_ = os.Remove(p)
			}
		}
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return name, nil
}
