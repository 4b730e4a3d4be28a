package constants

import (
	"path/filepath"
	"strings"
)

// MediaKind is the normalized file extension of an upload.
type MediaKind string

const (
	KindPDF  MediaKind = "pdf"
	KindJPG  MediaKind = "jpg"
	KindJPEG MediaKind = "jpeg"
	KindPNG  MediaKind = "png"
)

// AllowedExtensions holds the extensions accepted for ingestion.
var AllowedExtensions = map[MediaKind]struct{}{
	KindPDF:  {},
	KindJPG:  {},
	KindJPEG: {},
	KindPNG:  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindFromPath derives the media kind from a filename. ok is false when the
// extension is not one of AllowedExtensions.
func KindFromPath(name string) (MediaKind, bool) {
	k := MediaKind(NormalizeExt(filepath.Ext(name)))
	_, ok := AllowedExtensions[k]
	return k, ok
}

// IsImage reports whether the kind is a raster image.
func (k MediaKind) IsImage() bool {
	return k == KindJPG || k == KindJPEG || k == KindPNG
}

// MIME returns the content type used when the image is sent over the wire.
func (k MediaKind) MIME() string {
	switch k {
	case KindPDF:
		return "application/pdf"
	case KindPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}

// Provenance records which strategy produced extracted text.
type Provenance string

const (
	ProvenanceDigital Provenance = "digital-parse"
	ProvenanceOCR     Provenance = "ocr-fallback"
)
