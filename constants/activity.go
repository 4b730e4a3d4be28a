package constants

import "strings"

// ActionKind is a billable user action tracked by the usage ledger.
type ActionKind string

const (
	ActionReport ActionKind = "report"
	ActionScan   ActionKind = "scan"
	ActionQuery  ActionKind = "query"
)

// Stable activity labels (stored verbatim in activities.action).
const (
	LabelReport = "Uploaded Lab Report"
	LabelScan   = "Scanned Medicine"
	LabelQuery  = "Asked AI Query"
)

// Counter columns on the users table.
const (
	ColumnReportsCount = "reports_count"
	ColumnScansCount   = "scans_count"
	ColumnQueriesCount = "queries_count"
)

var actionLabels = map[ActionKind]string{
	ActionReport: LabelReport,
	ActionScan:   LabelScan,
	ActionQuery:  LabelQuery,
}

var actionColumns = map[ActionKind]string{
	ActionReport: ColumnReportsCount,
	ActionScan:   ColumnScansCount,
	ActionQuery:  ColumnQueriesCount,
}

// Label returns the activity label for k.
func (k ActionKind) Label() string { return actionLabels[k] }

// CounterColumn returns the users column incremented for k.
func (k ActionKind) CounterColumn() string { return actionColumns[k] }

// Valid reports whether k is one of the three tracked kinds.
func (k ActionKind) Valid() bool {
	_, ok := actionLabels[k]
	return ok
}

// ActivityTypes lists the client-facing names accepted by the activity endpoint.
var ActivityTypes = []string{"labReport", "medicineScan", "aiQuery"}

// ParseActivityType maps a client-facing activity type onto an ActionKind.
func ParseActivityType(input string) (ActionKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]ActionKind{
		"labreport":    ActionReport,
		"medicinescan": ActionScan,
		"aiquery":      ActionQuery,
	}
	if k, ok := synonyms[normalized]; ok {
		return k, true
	}
	return "", false
}
