package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	text = string(out)
	// pdftotext separates pages with a form feed
	pages = strings.Count(strings.TrimRight(text, "\f"), "\f") + 1
	return strings.ReplaceAll(text, "\f", "\n\n"), pages, nil
}

// pdfToOCR renders every page into a per-run scratch directory, recognizes the
// pages in order and joins the non-empty results with a blank line. The
// scratch directory is removed before returning.
func (e *Extractor) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	if e.recognizer == nil {
		return "", 0, nil, errors.New("no OCR recognizer configured")
	}
	tmpDir, err := os.MkdirTemp(e.cfg.ScratchDir, "medscan-pages-*")
	if err != nil {
		return "", 0, nil, fmt.Errorf("scratch dir: %w", err)
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("ocr.scratch.cleanup_failed", "dir", dir, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, append(args, path, prefix)...)
	if err != nil {
		return "", 0, nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	// collect generated pngs (page-1.png, page-2.png, ... zero-padded past 9 pages)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, nil, errors.New("pdftoppm produced no page images")
	}

	var parts []string
	for i, img := range matches {
		if err := ctx.Err(); err != nil {
			return "", 0, warnings, err
		}
		txt, err := e.recognizer.RecognizeImage(ctx, img)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", len(matches), warnings, errors.New("OCR produced no text on any page")
	}
	return strings.Join(parts, "\n\n"), len(matches), warnings, nil
}
