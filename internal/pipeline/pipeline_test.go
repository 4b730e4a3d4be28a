package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/medscan/constants"
	"github.com/joseph-ayodele/medscan/internal/common"
	"github.com/joseph-ayodele/medscan/internal/conversation"
	"github.com/joseph-ayodele/medscan/internal/entity"
	"github.com/joseph-ayodele/medscan/internal/ledger"
	"github.com/joseph-ayodele/medscan/internal/llm"
	"github.com/joseph-ayodele/medscan/internal/ocr"
	"github.com/joseph-ayodele/medscan/internal/pipeline"
	"github.com/joseph-ayodele/medscan/internal/repository"
	"github.com/joseph-ayodele/medscan/internal/repository/repotest"
)

const email = "ada@example.com"

type fakeExtractor struct {
	res   ocr.Result
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, _ constants.MediaKind) (ocr.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeModel struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts [][]llm.Message
}

func (f *fakeModel) Complete(_ context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, msgs)
	return f.answer, f.err
}

type failingLedger struct{}

func (failingLedger) RecordAction(context.Context, string, constants.ActionKind) (entity.Counters, error) {
	return entity.Counters{}, common.ErrLedgerCommitFailed
}

type fixture struct {
	client    *repository.Client
	extractor *fakeExtractor
	model     *fakeModel
	store     *conversation.MemoryStore
	proc      *pipeline.Processor
}

func newFixture(t *testing.T, rec ledger.Recorder) *fixture {
	t.Helper()
	client := repotest.NewClient(t)
	require.NoError(t, client.Users().Create(context.Background(), &entity.User{
		Email:         email,
		Name:          "Ada",
		DOB:           time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Age:           35,
		HealthRecords: []string{"type 2 diabetes"},
	}))
	if rec == nil {
		rec = ledger.New(client, repotest.Logger())
	}
	f := &fixture{
		client: client,
		extractor: &fakeExtractor{res: ocr.Result{
			Text:       "Hemoglobin 10.1 g/dL (13.0 - 17.0)",
			Provenance: constants.ProvenanceDigital,
			Pages:      1,
		}},
		model: &fakeModel{answer: "Your hemoglobin is low."},
		store: conversation.NewMemoryStore(llm.ChatPreamble),
	}
	f.proc = pipeline.NewProcessor(pipeline.Config{}, f.extractor, client.Users(), f.model, rec, f.store, repotest.Logger())
	return f
}

func upload(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o600))
	return p
}

func (f *fixture) activities(t *testing.T) []entity.Activity {
	t.Helper()
	acts, err := f.client.Activities().ListByUser(context.Background(), email)
	require.NoError(t, err)
	return acts
}

func TestRun_LabReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	path := upload(t, "report.pdf")

	res, err := f.proc.Run(ctx, pipeline.Request{
		UserEmail: email, FilePath: path, Filename: "report.pdf", Mode: constants.ActionReport,
	})
	require.NoError(t, err)
	assert.Equal(t, "Your hemoglobin is low.", res.Response)
	assert.Equal(t, constants.ProvenanceDigital, res.Provenance)
	assert.Equal(t, constants.StateResponded, res.State)
	assert.Equal(t, int64(1), res.Counters.Reports)
	assert.True(t, res.Elapsed > 0)

	require.Len(t, f.model.prompts, 1)
	sys := f.model.prompts[0][0].Content
	assert.Contains(t, sys, "Write the whole answer in English.")
	assert.Contains(t, sys, "age 35")
	assert.Contains(t, sys, "type 2 diabetes")
	assert.Contains(t, f.model.prompts[0][1].Content, "Hemoglobin 10.1")

	acts := f.activities(t)
	require.Len(t, acts, 1)
	assert.Equal(t, constants.LabelReport, acts[0].Action)

	transcript, err := f.store.GetOrInit(ctx, email)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, llm.RoleUser, transcript[1].Role)
	assert.Equal(t, "Your hemoglobin is low.", transcript[2].Content)

	assert.NoFileExists(t, path)
}

func TestRun_RequestedLanguage(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.proc.Run(context.Background(), pipeline.Request{
		UserEmail: email, FilePath: upload(t, "box.png"), Filename: "box.png",
		Mode: constants.ActionScan, Language: "Hindi",
	})
	require.NoError(t, err)
	assert.Contains(t, f.model.prompts[0][0].Content, "Write the whole answer in Hindi.")
	assert.Equal(t, constants.LabelScan, f.activities(t)[0].Action)
}

func TestRun_RejectsBeforeExtraction(t *testing.T) {
	cases := []struct {
		name string
		file string
		mode constants.ActionKind
	}{
		{"unsupported extension", "notes.txt", constants.ActionReport},
		{"pdf in medicine mode", "box.pdf", constants.ActionScan},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			path := upload(t, tc.file)
			_, err := f.proc.Run(context.Background(), pipeline.Request{
				UserEmail: email, FilePath: path, Filename: tc.file, Mode: tc.mode,
			})
			require.ErrorIs(t, err, common.ErrUnsupportedMediaKind)

			var runErr *pipeline.RunError
			require.ErrorAs(t, err, &runErr)
			assert.Equal(t, constants.StateReceived, runErr.State)

			assert.Zero(t, f.extractor.calls)
			assert.Empty(t, f.model.prompts)
			assert.Empty(t, f.activities(t))
			assert.NoFileExists(t, path)
		})
	}
}

func TestRun_NoFile(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.proc.Run(context.Background(), pipeline.Request{UserEmail: email, Mode: constants.ActionReport})
	assert.ErrorIs(t, err, common.ErrNoFile)
}

func TestRun_ExtractionFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.extractor.err = errors.New("pdftoppm exploded")

	_, err := f.proc.Run(context.Background(), pipeline.Request{
		UserEmail: email, FilePath: upload(t, "scan.pdf"), Filename: "scan.pdf", Mode: constants.ActionReport,
	})
	require.ErrorIs(t, err, common.ErrExtractionFailed)
	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, constants.StateExtracting, runErr.State)
	assert.Empty(t, f.model.prompts)
	assert.Empty(t, f.activities(t))
}

func TestRun_ModelFailureLeavesNoLedgerEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.model.err = common.ErrModelInvocationFailed

	_, err := f.proc.Run(ctx, pipeline.Request{
		UserEmail: email, FilePath: upload(t, "r.pdf"), Filename: "r.pdf", Mode: constants.ActionReport,
	})
	require.ErrorIs(t, err, common.ErrModelInvocationFailed)
	assert.Empty(t, f.activities(t))

	c, err := f.client.Users().Counters(ctx, email)
	require.NoError(t, err)
	assert.Zero(t, c.Reports)
}

func TestRun_LedgerFailureFailsRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingLedger{})

	_, err := f.proc.Run(ctx, pipeline.Request{
		UserEmail: email, FilePath: upload(t, "r.pdf"), Filename: "r.pdf", Mode: constants.ActionReport,
	})
	require.ErrorIs(t, err, common.ErrLedgerCommitFailed)
	var runErr *pipeline.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, constants.StateModelInvoked, runErr.State)

	transcript, err := f.store.GetOrInit(ctx, email)
	require.NoError(t, err)
	assert.Len(t, transcript, 1, "only the preamble")
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.model.answer = "  Drink water.  \n\n Rest. "

	res, err := f.proc.Chat(ctx, pipeline.ChatRequest{UserEmail: email, Input: "I have a headache"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Counters.Queries)

	f.model.answer = "Still rest."
	_, err = f.proc.Chat(ctx, pipeline.ChatRequest{UserEmail: email, Input: "And now?"})
	require.NoError(t, err)

	second := f.model.prompts[1]
	require.Len(t, second, 4)
	assert.Equal(t, llm.ChatPreamble, second[0].Content)
	assert.Equal(t, "I have a headache", second[1].Content)
	assert.Equal(t, "And now?", second[3].Content)

	acts := f.activities(t)
	require.Len(t, acts, 2)
	assert.Equal(t, constants.LabelQuery, acts[0].Action)

	require.NoError(t, f.proc.ClearChat(ctx, email))
	transcript, err := f.store.GetOrInit(ctx, email)
	require.NoError(t, err)
	assert.Len(t, transcript, 1)
}

func TestChat_EmptyInput(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.proc.Chat(context.Background(), pipeline.ChatRequest{UserEmail: email, Input: "   "})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, f.model.prompts)
}
