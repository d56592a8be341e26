package recap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/roster"
)

// Period is a calendar month.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func (p Period) Validate() error {
	var flds []core.FieldError
	if p.Year < 1 || p.Year > 9999 {
		flds = append(flds, core.FieldError{Field: "year", Error: "year must be between 1 and 9999"})
	}
	if p.Month < time.January || p.Month > time.December {
		flds = append(flds, core.FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// Days returns every calendar day of the month, in UTC.
func (p Period) Days() []time.Time {
	n := time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	days := make([]time.Time, 0, n)
	for d := 1; d <= n; d++ {
		days = append(days, time.Date(p.Year, p.Month, d, 0, 0, 0, 0, time.UTC))
	}
	return days
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Member is a student listed by a recap.
type Member struct {
	NISN string `json:"nisn"`
	Nama string `json:"nama"`
}

func MembersOf(students []roster.Student) []Member {
	members := make([]Member, 0, len(students))
	for _, s := range students {
		members = append(members, Member{NISN: s.NISN, Nama: s.Nama})
	}
	return members
}

func MembersOfRefs(refs []roster.StudentRef) []Member {
	members := make([]Member, 0, len(refs))
	for _, ref := range refs {
		members = append(members, Member{NISN: ref.NISN, Nama: ref.Nama})
	}
	return members
}

// Tally counts the derived codes of one student. NoData days are not counted.
type Tally struct {
	S int `json:"S"`
	I int `json:"I"`
	A int `json:"A"`
	H int `json:"H"`
	T int `json:"T"`
}

func (t *Tally) Add(c attendance.Code) {
	switch c {
	case attendance.CodeSick:
		t.S++
	case attendance.CodePermit:
		t.I++
	case attendance.CodeAbsent:
		t.A++
	case attendance.CodePresent:
		t.H++
	case attendance.CodeLate:
		t.T++
	}
}

func (t Tally) values() []int {
	return []int{t.S, t.I, t.A, t.H, t.T}
}

type Row struct {
	No    int               `json:"no"`
	NISN  string            `json:"nisn"`
	Nama  string            `json:"nama"`
	Cells []attendance.Code `json:"cells"` // one per day of the period
	Tally Tally             `json:"tally"`
}

type Recap struct {
	Period Period `json:"period"`
	Rows   []Row  `json:"rows"`
}

// Build derives the status of every member on every day of the period and tallies them.
func Build(p Period, members []Member, ledger attendance.Ledger) Recap {
	days := p.Days()
	rows := make([]Row, 0, len(members))
	for i, m := range members {
		row := Row{No: i + 1, NISN: m.NISN, Nama: m.Nama, Cells: make([]attendance.Code, 0, len(days))}
		for _, day := range days {
			records, found := ledger.On(day)
			c := attendance.DeriveRecords(records, found, m.NISN)
			row.Cells = append(row.Cells, c)
			row.Tally.Add(c)
		}
		rows = append(rows, row)
	}
	return Recap{Period: p, Rows: rows}
}

// Header returns "No, NISN, Nama, 01..NN, S, I, A, H, T".
func (r Recap) Header() []string {
	days := r.Period.Days()
	header := make([]string, 0, 3+len(days)+len(attendance.Codes))
	header = append(header, "No", "NISN", "Nama")
	for _, day := range days {
		header = append(header, attendance.DayKey(day))
	}
	for _, c := range attendance.Codes {
		header = append(header, string(c))
	}
	return header
}

// Table returns the export matrix: the header followed by one row per member.
func (r Recap) Table() [][]string {
	table := make([][]string, 0, len(r.Rows)+1)
	table = append(table, r.Header())
	for _, row := range r.Rows {
		line := make([]string, 0, 3+len(row.Cells)+len(attendance.Codes))
		line = append(line, strconv.Itoa(row.No), row.NISN, row.Nama)
		for _, c := range row.Cells {
			line = append(line, string(c))
		}
		for _, n := range row.Tally.values() {
			line = append(line, strconv.Itoa(n))
		}
		table = append(table, line)
	}
	return table
}

type SheetRow struct {
	NISN       string          `json:"nisn"`
	Nama       string          `json:"nama"`
	Status     attendance.Code `json:"status"`
	Keterangan string          `json:"keterangan,omitempty"`
}

// Sheet is the editing view of one day.
type Sheet struct {
	Taken bool       `json:"taken"` // false when the day was never written
	Rows  []SheetRow `json:"rows"`
}

// NewSheet marks every member present, then applies the stored records of the day.
// Records of students outside the roster are ignored.
func NewSheet(members []Member, records []attendance.Record, found bool) Sheet {
	index := make(map[string]int, len(members))
	rows := make([]SheetRow, 0, len(members))
	for i, m := range members {
		index[m.NISN] = i
		rows = append(rows, SheetRow{NISN: m.NISN, Nama: m.Nama, Status: attendance.CodePresent})
	}
	for _, r := range records {
		if i, ok := index[r.NISN]; ok {
			rows[i].Status = r.Code()
			rows[i].Keterangan = r.Keterangan
		}
	}
	return Sheet{Taken: found, Rows: rows}
}
