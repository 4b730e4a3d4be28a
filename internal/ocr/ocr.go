package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
)

// DefaultMinDigitalChars is the trimmed length a PDF text layer must exceed
// before it is accepted without OCR.
const DefaultMinDigitalChars = 30

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"

	DPI      int // rasterization DPI for scanned PDFs, default 300
	MaxPages int // 0 = no limit

	// MinDigitalChars gates the digital text layer; see IsTextSufficient.
	// 0 or less uses DefaultMinDigitalChars.
	MinDigitalChars int

	// ScratchDir is where per-run page images are written; "" uses os.TempDir.
	ScratchDir string
}

// Result is the normalized output of one extraction run.
type Result struct {
	Text       string
	Provenance constants.Provenance
	Pages      int
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Duration   time.Duration
	Warnings   []string
}

type Extractor struct {
	cfg        Config
	runner     Runner
	recognizer Recognizer
	logger     *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner used for pdftotext and pdftoppm.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

func NewExtractor(cfg Config, recognizer Recognizer, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinDigitalChars <= 0 {
		cfg.MinDigitalChars = DefaultMinDigitalChars
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, recognizer: recognizer, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the text of the file at path. Images are sent straight to
// OCR. PDFs use their digital text layer when it passes IsTextSufficient and
// are otherwise rasterized and OCRed page by page.
func (e *Extractor) Extract(ctx context.Context, path string, kind constants.MediaKind) (Result, error) {
	start := time.Now()
	if _, ok := constants.AllowedExtensions[kind]; !ok {
		e.logger.Warn("ocr.extract.unsupported", "path", path, "kind", kind)
		return Result{}, common.NewAppError("UNSUPPORTED_MEDIA", fmt.Sprintf("unsupported file type %q", kind), common.ErrUnsupportedMediaKind)
	}
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		e.logger.Error("ocr.extract.missing_file", "path", path, "error", err)
		return Result{}, common.NewAppError("EXTRACTION_FAILED", "uploaded file is not readable", errors.Join(common.ErrExtractionFailed, err))
	}

	e.logger.Debug("ocr.extract.start", "path", path, "kind", kind)
	var (
		res Result
		err error
	)
	if kind.IsImage() {
		res, err = e.extractImage(ctx, path)
	} else {
		res, err = e.extractPDF(ctx, path)
	}
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Error("ocr.extract.failed", "path", path, "kind", kind, "error", err, "warnings", len(res.Warnings))
		if errors.Is(err, common.ErrExtractionFailed) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
	}

	e.logger.Info("ocr.extract.ok",
		"path", path,
		"provenance", res.Provenance,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	if e.recognizer == nil {
		return Result{}, errors.New("no OCR recognizer configured")
	}
	txt, err := e.recognizer.RecognizeImage(ctx, path)
	if err != nil {
		return Result{Warnings: []string{err.Error()}}, err
	}
	txt = Normalize(txt)
	if txt == "" {
		return Result{}, errors.New("OCR produced no text")
	}
	return Result{
		Text:       txt,
		Provenance: constants.ProvenanceOCR,
		Pages:      1,
		Method:     "image-ocr",
	}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	var warns []string
	text, pages, err := e.pdfToText(ctx, path)
	switch {
	case err != nil:
		warns = append(warns, "digital parse: "+err.Error())
		e.logger.Warn("ocr.pdf.digital_failed", "path", path, "error", err)
	case IsTextSufficient(text, e.cfg.MinDigitalChars):
		return Result{
			Text:       Normalize(text),
			Provenance: constants.ProvenanceDigital,
			Pages:      pages,
			Method:     "pdf-text",
		}, nil
	default:
		e.logger.Info("ocr.pdf.digital_insufficient", "path", path, "chars", len(text), "min", e.cfg.MinDigitalChars)
	}

	text, pages, ocrWarns, err := e.pdfToOCR(ctx, path)
	warns = append(warns, ocrWarns...)
	if err != nil {
		return Result{Warnings: warns}, err
	}
	return Result{
		Text:       Normalize(text),
		Provenance: constants.ProvenanceOCR,
		Pages:      pages,
		Method:     "pdf-ocr",
		Warnings:   warns,
	}, nil
}
