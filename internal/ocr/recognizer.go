package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/medscan/constants"
)

// Recognizer turns one page image into text.
type Recognizer interface {
	RecognizeImage(ctx context.Context, path string) (string, error)
}

// TesseractConfig configures the local tesseract backend.
type TesseractConfig struct {
	Binary      string // default "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text
	OEM         int // 1 = LSTM; leave 0 to use default
}

// Tesseract runs the tesseract CLI.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

func (t *Tesseract) RecognizeImage(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}

// ImageTranscriber is a hosted vision model that reads text off an image
// given as a data URL.
type ImageTranscriber interface {
	TranscribeImage(ctx context.Context, dataURL string) (string, error)
}

// Remote sends page images to a hosted vision model.
type Remote struct {
	model    ImageTranscriber
	maxBytes int64
}

// NewRemote wraps model; images larger than maxBytes are rejected (0 = 10 MiB).
func NewRemote(model ImageTranscriber, maxBytes int64) *Remote {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Remote{model: model, maxBytes: maxBytes}
}

func (r *Remote) RecognizeImage(ctx context.Context, path string) (string, error) {
	url, err := readAsDataURL(path, r.maxBytes)
	if err != nil {
		return "", err
	}
	return r.model.TranscribeImage(ctx, url)
}

func readAsDataURL(path string, maxBytes int64) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if st.Size() > maxBytes {
		return "", fmt.Errorf("image %s exceeds %d bytes", path, maxBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	kind, ok := constants.KindFromPath(path)
	if !ok || !kind.IsImage() {
		return "", errors.New("remote OCR accepts only png or jpeg images")
	}
	return "data:" + kind.MIME() + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

// Recognizer backends selectable through configuration.
const (
	BackendTesseract = "tesseract"
	BackendRemote    = "remote"
)

// NewRecognizer picks the OCR backend by name. The remote backend needs a
// non-nil transcriber.
func NewRecognizer(backend string, tess TesseractConfig, transcriber ImageTranscriber, logger *slog.Logger) (Recognizer, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendTesseract, "":
		return NewTesseract(tess, nil, logger), nil
	case BackendRemote:
		if transcriber == nil {
			return nil, errors.New("remote OCR backend requires a vision model client")
		}
		return NewRemote(transcriber, 0), nil
	default:
		return nil, fmt.Errorf("unknown OCR backend %q", backend)
	}
}
