package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/llm"
	"github.com/joseph-ayodele/medscan/internal/llm/openai"
	"github.com/joseph-ayodele/medscan/internal/ocr"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		file     = flag.String("file", "", "lab report (pdf, jpg, png) or medicine image to extract (required)")
		backend  = flag.String("backend", "", "OCR backend: tesseract | remote (default from OCR_BACKEND)")
		minChars = flag.Int("min-chars", 0, "digital text threshold (default from OCR_MIN_DIGITAL_CHARS)")
		ask      = flag.String("ask", "", "also send the text to the model: report | scan")
		lang     = flag.String("lang", "", "answer language for -ask")
	)
	flag.Parse()

	if *file == "" {
		printError("Error: -file is required\n")
		flag.Usage()
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if *backend != "" {
		cfg.OCR.Backend = *backend
	}
	if *minChars > 0 {
		cfg.OCR.MinDigitalChars = *minChars
	}

	kind, ok := constants.KindFromPath(*file)
	if !ok {
		printError("Error: unsupported file type %q\n", *file)
		os.Exit(2)
	}

	ctx, cancel := common.WithTimeout(context.Background(), cfg.Pipeline.ExtractTimeout+cfg.LLM.Timeout)
	defer cancel()

	model := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.OCRModel,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	recognizer, err := ocr.NewRecognizer(cfg.OCR.Backend, ocr.TesseractConfig{
		Lang:        cfg.OCR.Lang,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         6,
		OEM:         1,
	}, model, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}
	extractor := ocr.NewExtractor(ocr.Config{
		DPI:             cfg.OCR.DPI,
		MaxPages:        cfg.OCR.MaxPages,
		MinDigitalChars: cfg.OCR.MinDigitalChars,
	}, recognizer, logger)

	res, err := extractor.Extract(ctx, *file, kind)
	if err != nil {
		logger.Error("text extraction failed", "file", *file, "error", err, "duration_ms", res.Duration.Milliseconds())
		os.Exit(1)
	}
	logger.Info("text extraction OK",
		"provenance", res.Provenance,
		"method", res.Method,
		"pages", res.Pages,
		"bytes", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)

	out := map[string]any{
		"provenance": res.Provenance,
		"method":     res.Method,
		"pages":      res.Pages,
		"warnings":   res.Warnings,
		"text":       res.Text,
	}

	switch strings.ToLower(*ask) {
	case "":
	case "report", "scan":
		pc := llm.PatientContext{Language: *lang}
		if pc.Language == "" {
			pc.Language = cfg.Pipeline.DefaultLanguage
		}
		prompt := llm.BuildReportPrompt(res.Text, pc)
		if strings.EqualFold(*ask, "scan") {
			prompt = llm.BuildMedicinePrompt(res.Text, pc)
		}
		answer, err := model.Complete(ctx, prompt)
		if err != nil {
			logger.Error("model call failed", "error", err)
			os.Exit(1)
		}
		out["response"] = answer
	default:
		printError("Error: -ask must be report or scan\n")
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}
