// Package images stores uploaded catalog images on disk and hands out
// public references for them. Validation is strict: both the declared
// MIME type and the file extension must name the same supported format.
package images

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

const MaxBytes = 2 << 20 // 2 MiB upload cap

var (
	ErrTooLarge = errors.New("image exceeds size limit")
	ErrBadType  = errors.New("only .png, .jpg and .jpeg images allowed")
)

type Store interface {
	// Save validates and persists one image, returning its public reference.
	Save(ctx context.Context, declaredMIME, originalFilename string, data []byte) (string, error)

	// Remove deletes the file behind ref. It is idempotent: a missing file
	// is logged and reported as success so catalog mutations never stall
	// on image cleanup.
	Remove(ctx context.Context, ref string) error
}

// imageKind normalizes an extension or MIME type to "jpeg", "png", or "".
func imageKind(s string) string {
	switch strings.ToLower(s) {
	case ".jpg", ".jpeg", "image/jpeg", "image/jpg":
		return "jpeg"
	case ".png", "image/png":
		return "png"
	default:
		return ""
	}
}

// validate applies the upload rules: size cap, and extension + declared
// MIME type agreeing on a supported format. A .png named file declared as
// image/jpeg is rejected even though each half looks fine on its own.
func validate(declaredMIME, originalFilename string, data []byte) (ext string, err error) {
	if len(data) > MaxBytes {
		return "", ErrTooLarge
	}

	ext = strings.ToLower(filepath.Ext(originalFilename))
	extKind := imageKind(ext)
	mimeKind := imageKind(declaredMIME)

	if extKind == "" || mimeKind == "" || extKind != mimeKind {
		return "", ErrBadType
	}
	return ext, nil
}
