package constants

// PipelineState is the stage an ingestion run has reached.
type PipelineState string

// Stable values (used in logs and error payloads).
const (
	StateReceived        PipelineState = "RECEIVED"
	StateExtracting      PipelineState = "EXTRACTING"
	StatePromptBuilt     PipelineState = "PROMPT_BUILT"
	StateModelInvoked    PipelineState = "MODEL_INVOKED"
	StateLedgerCommitted PipelineState = "LEDGER_COMMITTED"
	StateResponded       PipelineState = "RESPONDED" // terminal success
	StateFailed          PipelineState = "FAILED"    // terminal failure
)
