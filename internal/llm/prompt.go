package llm

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultLanguage is used when neither the request nor the configuration names one.
const DefaultLanguage = "English"

// ChatPreamble is the fixed system message at the head of every chat transcript.
const ChatPreamble = "You are MedScan, a careful health assistant. " +
	"Explain lab results, medicines and symptoms in plain language a non-medical person can follow. " +
	"Keep answers short and factual. Never present yourself as a doctor or give a diagnosis; " +
	"when something could be serious, recommend consulting a healthcare professional."

// BuildReportPrompt turns extracted lab-report text into the model request.
func BuildReportPrompt(extracted string, pc PatientContext) []Message {
	lang := languageOrDefault(pc.Language)
	parts := []string{
		"You analyze raw text extracted from a medical lab report and explain it to a patient.",
		"Ignore personal and administrative details such as names, dates, addresses and lab branding.",
		"List every test whose value falls outside its reference range. For each one give the test name, the measured value, whether it is higher or lower than normal, and a plain-language explanation of what that can mean.",
		"Finish with a one-line summary of the main findings.",
		"Suggest next steps (for example seeing a doctor, a follow-up test, a diet or lifestyle change) only for results that could be harmful.",
		"Avoid medical jargon and do not label results as dangerous or safe.",
		"Write the whole answer in " + lang + ".",
	}
	if p := patientLine(pc); p != "" {
		parts = append(parts, p)
	}
	return []Message{
		{Role: RoleSystem, Content: strings.Join(parts, " ")},
		{Role: RoleUser, Content: "Lab report text:\n\n" + extracted},
	}
}

// BuildMedicinePrompt turns text read off a medicine package into the model request.
func BuildMedicinePrompt(extracted string, pc PatientContext) []Message {
	lang := languageOrDefault(pc.Language)
	parts := []string{
		"You identify a medicine from text read off its packaging, label or prescription strip.",
		"Give the medicine name and active ingredients, what it is commonly used for, the usual way it is taken as printed on the pack, common side effects and important warnings.",
		"If the text is too unclear to identify the medicine, say so instead of guessing.",
		"Point out any interaction or caution that is relevant to the patient notes below.",
		"Write the whole answer in " + lang + ".",
	}
	if p := patientLine(pc); p != "" {
		parts = append(parts, p)
	}
	return []Message{
		{Role: RoleSystem, Content: strings.Join(parts, " ")},
		{Role: RoleUser, Content: "Text from the medicine package:\n\n" + extracted},
	}
}

// UserTurnSummary is the transcript entry recorded for a document upload, so a
// follow-up chat question can refer back to it.
func UserTurnSummary(kind, extracted string) string {
	const maxLen = 4000
	if len(extracted) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(extracted[cut]) {
			cut--
		}
		extracted = extracted[:cut] + "..."
	}
	return "[" + kind + "]\n" + extracted
}

func patientLine(pc PatientContext) string {
	var bits []string
	if pc.Age > 0 {
		bits = append(bits, "age "+strconv.Itoa(pc.Age))
	}
	var notes []string
	for _, r := range pc.HealthRecords {
		if r = strings.TrimSpace(r); r != "" {
			notes = append(notes, r)
		}
	}
	if len(notes) > 0 {
		bits = append(bits, "health notes: "+strings.Join(notes, "; "))
	}
	if len(bits) == 0 {
		return ""
	}
	return "Patient context: " + strings.Join(bits, ", ") + "."
}

func languageOrDefault(lang string) string {
	if l := strings.TrimSpace(lang); l != "" {
		return l
	}
	return DefaultLanguage
}
