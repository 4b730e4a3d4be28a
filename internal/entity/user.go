package entity

import "time"

// User represents a registered account for data transfer between layers.
type User struct {
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	DOB           time.Time `json:"dob"`
	Age           int       `json:"age"`
	HealthRecords []string  `json:"healthRecords"`
	Counters
}

// Counters are the per-user usage totals maintained by the ledger.
type Counters struct {
	Reports int64 `json:"reportsCount"`
	Scans   int64 `json:"scansCount"`
	Queries int64 `json:"queriesCount"`
}

// AgeAt returns full calendar years between dob and now: the year difference,
// minus one when the birthday has not yet come round this year.
func AgeAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}
