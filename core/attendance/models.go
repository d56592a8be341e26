package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/presensi/core"
)

// Collections
const (
	CollMonthly  = "attendance_monthly"
	CollSemester = "attendance_semester"
)

// Status is a status as written by callers.
type Status string

const (
	StatusSakit     Status = "sakit"
	StatusIzin      Status = "izin"
	StatusAlpha     Status = "alpha"
	StatusHadir     Status = "hadir"
	StatusTerlambat Status = "terlambat"
)

// Code is a normalized status, as displayed and tallied.
type Code string

const (
	CodeSick    Code = "S"
	CodePermit  Code = "I"
	CodeAbsent  Code = "A"
	CodePresent Code = "H"
	CodeLate    Code = "T"

	// NoData marks a date the ledger has no entry for: not taken yet, or a holiday.
	NoData Code = "-"
)

// Codes lists the tallied codes in display order.
var Codes = []Code{CodeSick, CodePermit, CodeAbsent, CodePresent, CodeLate}

// Normalize maps a status to its code. ok is false for an unknown status.
func (s Status) Normalize() (c Code, ok bool) {
	switch Status(strings.TrimSpace(string(s))) {
	case "S", StatusSakit:
		return CodeSick, true
	case "I", StatusIzin:
		return CodePermit, true
	case "A", StatusAlpha:
		return CodeAbsent, true
	case "H", StatusHadir:
		return CodePresent, true
	case StatusTerlambat:
		return CodeLate, true
	}
	return Code(s), false
}

// Record is one student's status on one date.
type Record struct {
	NISN       string `json:"nisn" bson:"nisn" validate:"required"`
	Status     Status `json:"status" bson:"status" validate:"required,status"`
	Keterangan string `json:"keterangan,omitempty" bson:"keterangan,omitempty"`
}

// Code returns the normalized status of the record.
func (r Record) Code() Code {
	c, _ := r.Status.Normalize()
	return c
}

// History is a sparse date map of a ledger partition.
type History interface {
	// Day returns the records of dateKey. found is false when the partition has no entry for the date.
	Day(dateKey string) (records []Record, found bool)
}

// Ledger is a partition addressed by calendar date.
type Ledger interface {
	On(date time.Time) (records []Record, found bool)
}

// Derive returns the status of nisn on dateKey: NoData when the date is absent, the normalized status when
// the student has a record, CodePresent otherwise.
func Derive(h History, nisn, dateKey string) Code {
	records, found := h.Day(dateKey)
	return DeriveRecords(records, found, nisn)
}

// DeriveRecords applies the derivation rule to the records of one date.
// When a NISN is recorded more than once the last record wins.
func DeriveRecords(records []Record, found bool, nisn string) Code {
	if !found {
		return NoData
	}
	code := CodePresent
	for _, r := range records {
		if r.NISN == nisn {
			code = r.Code()
		}
	}
	return code
}

// DayKey returns the monthly ledger's date key: the two-digit day.
func DayKey(date time.Time) string {
	return fmt.Sprintf("%02d", date.Day())
}

// MonthlyKey identifies the monthly partition of a class session.
type MonthlyKey struct {
	ClassID string
	Year    string // "2024"
	Month   string // "01"
}

func NewMonthlyKey(classID string, year int, month time.Month) MonthlyKey {
	return MonthlyKey{
		ClassID: core.CleanString(classID),
		Year:    fmt.Sprintf("%04d", year),
		Month:   fmt.Sprintf("%02d", int(month)),
	}
}

// MonthlyKeyOf returns the partition holding date.
func MonthlyKeyOf(classID string, date time.Time) MonthlyKey {
	return NewMonthlyKey(classID, date.Year(), date.Month())
}

// ID returns the document key: "{classId}_{year}_{month}".
func (k MonthlyKey) ID() string {
	return k.ClassID + "_" + k.Year + "_" + k.Month
}

// Monthly is a class session's attendance for one month. Only non-present records are stored.
type Monthly struct {
	ClassID string              `json:"class_id" bson:"class_id"`
	Bulan   string              `json:"bulan" bson:"bulan"`
	Tahun   string              `json:"tahun" bson:"tahun"`
	History map[string][]Record `json:"history" bson:"history"`
}

var (
	_ History = Monthly{} // interface compliance check
	_ Ledger  = Monthly{} // interface compliance check
)

func (m Monthly) Day(dayKey string) ([]Record, bool) {
	records, found := m.History[dayKey]
	return records, found
}

func (m Monthly) On(date time.Time) ([]Record, bool) {
	return m.Day(DayKey(date))
}

// SemesterKey identifies the semester partition of a rombel.
type SemesterKey struct {
	RombelID   string
	SemesterID string // "2024-2025-ganjil"
}

// ID returns the document key: "{rombelId}_{semesterId}".
func (k SemesterKey) ID() string {
	return k.RombelID + "_" + k.SemesterID
}

// DailyEntry is one date of the semester ledger. The stamp records the last editor only.
type DailyEntry struct {
	Records   []Record  `json:"records" bson:"records"`
	UpdatedBy string    `json:"updated_by" bson:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Semester is a rombel's audited daily attendance for one semester, keyed by ISO date.
type Semester struct {
	RombelID   string                `json:"rombel_id" bson:"rombel_id"`
	SemesterID string                `json:"semester_id" bson:"semester_id"`
	History    map[string]DailyEntry `json:"history" bson:"history"`
}

var (
	_ History = Semester{} // interface compliance check
	_ Ledger  = Semester{} // interface compliance check
)

func (s Semester) Day(dateKey string) ([]Record, bool) {
	entry, found := s.History[dateKey]
	return entry.Records, found
}

func (s Semester) On(date time.Time) ([]Record, bool) {
	return s.Day(date.Format(core.DateLayout))
}

// SemesterFor returns the semester holding date: January to June is the even ("genap") semester of the
// school year that started the previous July, July to December the odd ("ganjil") one.
func SemesterFor(date time.Time) string {
	y := date.Year()
	if date.Month() <= time.June {
		return fmt.Sprintf("%d-%d-genap", y-1, y)
	}
	return fmt.Sprintf("%d-%d-ganjil", y, y+1)
}
