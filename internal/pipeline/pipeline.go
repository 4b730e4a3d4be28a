// Package pipeline runs document and chat requests through extraction, the
// language model, the usage ledger and the conversation store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/conversation"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/ledger"
	"github.com/joseph-ayodele/medscan/internal/llm"
	"github.com/joseph-ayodele/medscan/internal/ocr"
)

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, path string, kind constants.MediaKind) (ocr.Result, error)
}

// UserLookup loads the stored patient context for a request.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type Config struct {
	DefaultLanguage string
	ExtractTimeout  time.Duration
	ModelTimeout    time.Duration
}

// Processor coordinates extraction, prompting, the model call, the ledger commit
// and the transcript append for one request.
type Processor struct {
	cfg        Config
	extractor  TextExtractor
	users      UserLookup
	model      llm.ChatModel
	ledger     ledger.Recorder
	transcript conversation.Store
	logger     *slog.Logger
}

func NewProcessor(cfg Config, extractor TextExtractor, users UserLookup, model llm.ChatModel,
	rec ledger.Recorder, transcript conversation.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = llm.DefaultLanguage
	}
	return &Processor{
		cfg:        cfg,
		extractor:  extractor,
		users:      users,
		model:      model,
		ledger:     rec,
		transcript: transcript,
		logger:     logger,
	}
}

// Request is one document upload. Mode is ActionReport or ActionScan.
type Request struct {
	UserEmail string
	FilePath  string
	Filename  string
	Mode      constants.ActionKind
	Language  string
}

// ChatRequest is one free-text question.
type ChatRequest struct {
	UserEmail string
	Input     string
}

// Result is returned on success only.
type Result struct {
	Response   string
	Provenance constants.Provenance
	Elapsed    time.Duration
	Counters   entity.Counters
	State      constants.PipelineState
}

// RunError records the state a failed run had reached.
type RunError struct {
	State constants.PipelineState
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// run tracks the state machine of a single request.
type run struct {
	state  constants.PipelineState
	logger *slog.Logger
}

func (r *run) advance(s constants.PipelineState) {
	r.logger.Debug("pipeline.state", "from", r.state, "to", s)
	r.state = s
}

func (r *run) fail(err error) error {
	r.logger.Error("pipeline.failed", "state", r.state, "error", err)
	failedAt := r.state
	r.state = constants.StateFailed
	return &RunError{State: failedAt, Err: err}
}

// Run processes an uploaded document. The file at req.FilePath is removed
// before Run returns, whatever the outcome.
//
// The ledger commits before the exchange is appended to the transcript, so a
// rolled-back ledger leaves no transcript entry for an answer the caller never
// receives. A transcript append failure after the commit is logged only.
func (p *Processor) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.FilePath != "" {
		defer p.removeUpload(req.FilePath)
	}
	logger := common.LoggerFromContext(ctx, p.logger).With("user", req.UserEmail, "mode", req.Mode)
	r := &run{state: constants.StateReceived, logger: logger}

	if req.FilePath == "" {
		return Result{}, r.fail(common.NewAppError("NO_FILE", "no file uploaded", common.ErrNoFile))
	}
	kind, err := acceptedKind(req)
	if err != nil {
		return Result{}, r.fail(err)
	}
	user, err := p.users.GetByEmail(ctx, req.UserEmail)
	if err != nil {
		return Result{}, r.fail(err)
	}

	r.advance(constants.StateExtracting)
	extracted, err := p.extract(ctx, req.FilePath, kind)
	if err != nil {
		return Result{}, r.fail(err)
	}
	logger.Info("pipeline.extract.ok",
		"provenance", extracted.Provenance,
		"pages", extracted.Pages,
		"chars", len(extracted.Text),
		"elapsed_ms", extracted.Duration.Milliseconds(),
	)

	pc := llm.PatientContext{
		Age:           user.Age,
		HealthRecords: user.HealthRecords,
		Language:      p.language(req.Language),
	}
	var prompt []llm.Message
	if req.Mode == constants.ActionScan {
		prompt = llm.BuildMedicinePrompt(extracted.Text, pc)
	} else {
		prompt = llm.BuildReportPrompt(extracted.Text, pc)
	}
	r.advance(constants.StatePromptBuilt)

	answer, err := p.complete(ctx, prompt)
	if err != nil {
		return Result{}, r.fail(err)
	}
	r.advance(constants.StateModelInvoked)

	counters, err := p.ledger.RecordAction(ctx, user.Email, req.Mode)
	if err != nil {
		return Result{}, r.fail(err)
	}
	r.advance(constants.StateLedgerCommitted)

	p.remember(ctx, logger, user.Email,
		llm.Message{Role: llm.RoleUser, Content: llm.UserTurnSummary(req.Mode.Label(), extracted.Text)},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)

	r.advance(constants.StateResponded)
	elapsed := time.Since(start)
	logger.Info("pipeline.run.ok", "provenance", extracted.Provenance, "elapsed_ms", elapsed.Milliseconds())
	return Result{
		Response:   answer,
		Provenance: extracted.Provenance,
		Elapsed:    elapsed,
		Counters:   counters,
		State:      r.state,
	}, nil
}

// Chat answers a free-text question in the context of the user's transcript.
func (p *Processor) Chat(ctx context.Context, req ChatRequest) (Result, error) {
	start := time.Now()
	logger := common.LoggerFromContext(ctx, p.logger).With("user", req.UserEmail, "mode", constants.ActionQuery)
	r := &run{state: constants.StateReceived, logger: logger}

	v := common.NewValidator()
	v.Field("input", req.Input, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return Result{}, r.fail(err)
	}
	if _, err := p.users.GetByEmail(ctx, req.UserEmail); err != nil {
		return Result{}, r.fail(err)
	}

	history, err := p.transcript.GetOrInit(ctx, req.UserEmail)
	if err != nil {
		return Result{}, r.fail(fmt.Errorf("%w: load transcript: %v", common.ErrInternal, err))
	}
	turn := llm.Message{Role: llm.RoleUser, Content: req.Input}
	prompt := append(history, turn)
	r.advance(constants.StatePromptBuilt)

	answer, err := p.complete(ctx, prompt)
	if err != nil {
		return Result{}, r.fail(err)
	}
	r.advance(constants.StateModelInvoked)

	counters, err := p.ledger.RecordAction(ctx, req.UserEmail, constants.ActionQuery)
	if err != nil {
		return Result{}, r.fail(err)
	}
	r.advance(constants.StateLedgerCommitted)

	p.remember(ctx, logger, req.UserEmail, turn, llm.Message{Role: llm.RoleAssistant, Content: answer})

	r.advance(constants.StateResponded)
	elapsed := time.Since(start)
	logger.Info("pipeline.chat.ok", "elapsed_ms", elapsed.Milliseconds())
	return Result{Response: answer, Elapsed: elapsed, Counters: counters, State: r.state}, nil
}

// ClearChat resets the user's transcript to the preamble.
func (p *Processor) ClearChat(ctx context.Context, email string) error {
	if err := p.transcript.Reset(ctx, email); err != nil {
		return fmt.Errorf("%w: reset transcript: %v", common.ErrInternal, err)
	}
	p.logger.Info("pipeline.chat.cleared", "user", email)
	return nil
}

func acceptedKind(req Request) (constants.MediaKind, error) {
	name := req.Filename
	if name == "" {
		name = req.FilePath
	}
	kind, ok := constants.KindFromPath(name)
	if !ok {
		return "", common.NewAppError("UNSUPPORTED_MEDIA",
			fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), common.ErrUnsupportedMediaKind)
	}
	switch req.Mode {
	case constants.ActionReport:
	case constants.ActionScan:
		if !kind.IsImage() {
			return "", common.NewAppError("UNSUPPORTED_MEDIA",
				"medicine scans must be JPG or PNG images", common.ErrUnsupportedMediaKind)
		}
	default:
		return "", common.InvalidArgumentErrorf("unknown pipeline mode %q", req.Mode)
	}
	return kind, nil
}

func (p *Processor) extract(ctx context.Context, path string, kind constants.MediaKind) (ocr.Result, error) {
	ctx, cancel := common.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()
	res, err := p.extractor.Extract(ctx, path, kind)
	if err != nil {
		if errors.Is(err, common.ErrUnsupportedMediaKind) || errors.Is(err, common.ErrExtractionFailed) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
	}
	return res, nil
}

func (p *Processor) complete(ctx context.Context, prompt []llm.Message) (string, error) {
	ctx, cancel := common.WithTimeout(ctx, p.cfg.ModelTimeout)
	defer cancel()
	answer, err := p.model.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, common.ErrModelInvocationFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", common.ErrModelInvocationFailed, err)
	}
	if answer == "" {
		return "", fmt.Errorf("%w: empty completion", common.ErrModelInvocationFailed)
	}
	return answer, nil
}

// remember appends one exchange. The ledger has already committed, so a
// transcript failure is logged rather than returned.
func (p *Processor) remember(ctx context.Context, logger *slog.Logger, email string, msgs ...llm.Message) {
	if err := p.transcript.Append(ctx, email, msgs...); err != nil {
		logger.Warn("pipeline.transcript.append_failed", "error", err)
	}
}

func (p *Processor) language(requested string) string {
	if requested != "" {
		return requested
	}
	return p.cfg.DefaultLanguage
}

func (p *Processor) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("pipeline.upload.remove_failed", "path", path, "error", err)
	}
}
