package avatar

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tbourn/go-social-backend/internal/apperr"
)

var testLimits = Limits{
	MaxBytes:  512 << 10,
	MaxWidth:  256,
	MaxHeight: 256,
	Formats:   []string{"jpeg"},
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestInspect_AcceptsConformingJPEG(t *testing.T) {
	format, err := Inspect(encodeJPEG(t, 180, 180), testLimits)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("format = %q, want jpeg", format)
	}
}

func TestInspect_OversizedPayload(t *testing.T) {
	raw := make([]byte, testLimits.MaxBytes+1)
	_, err := Inspect(raw, testLimits)
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestInspect_DisallowedFormat(t *testing.T) {
	_, err := Inspect(encodePNG(t, 180, 180), testLimits)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter for png upload, got %v", err)
	}
}

func TestInspect_ExcessiveDimensions(t *testing.T) {
	_, err := Inspect(encodeJPEG(t, 300, 100), testLimits)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter for oversized image, got %v", err)
	}
}

func TestInspect_Garbage(t *testing.T) {
	_, err := Inspect([]byte("not an image"), testLimits)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeInvalidParameter {
		t.Fatalf("expected InvalidParameter for garbage, got %v", err)
	}
}

func TestStore_ReplacesOldExtension(t *testing.T) {
	dir := t.TempDir()

	// Seed a stale file under a different extension.
	if err := os.WriteFile(filepath.Join(dir, "alice01.gif"), []byte("old"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	name, err := Store(dir, "", "alice01", "jpeg", encodeJPEG(t, 10, 10))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if name != "alice01.jpg" {
		t.Fatalf("name = %q, want alice01.jpg", name)
	}
	if _, err := os.Stat(filepath.Join(dir, "alice01.jpg")); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "alice01.gif")); !os.IsNotExist(err) {
		t.Fatalf("stale avatar should be removed, stat err = %v", err)
	}
}

func TestStore_StagesInTmpDir(t *testing.T) {
	dir := t.TempDir()
	tmpDir := t.TempDir()

	raw := encodeJPEG(t, 10, 10)
	name, err := Store(dir, tmpDir, "alice01", "jpeg", raw)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read stored: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatal("stored bytes differ from upload")
	}

	// The staging file must be gone once the rename lands.
	left, err := filepath.Glob(filepath.Join(tmpDir, "avatar-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("staging leftovers: %v", left)
	}
}

func TestStore_BadTmpDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := Store(dir, filepath.Join(dir, "missing"), "alice01", "jpeg", encodeJPEG(t, 10, 10)); err == nil {
		t.Fatal("expected error for nonexistent staging dir")
	}
}
