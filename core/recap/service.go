package recap

import (
	"context"
	"time"

	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/roster"
)

type (
	ClassReader interface {
		Get(ctx context.Context, id string) (class.Session, error)
	}

	RombelReader interface {
		GetRombel(ctx context.Context, id string) (roster.Rombel, error)
	}

	LedgerReader interface {
		CurrentSemester(date time.Time) string
		ReadMonthlyDay(ctx context.Context, classID string, date time.Time) ([]attendance.Record, bool, error)
		ReadMonthlyPartition(ctx context.Context, key attendance.MonthlyKey) (attendance.Monthly, error)
		ReadSemesterDay(ctx context.Context, key attendance.SemesterKey, date time.Time) (attendance.DailyEntry, bool, error)
		ReadSemesterPartition(ctx context.Context, key attendance.SemesterKey) (attendance.Semester, error)
	}
)

var (
	_ ClassReader  = (*class.Service)(nil)      // interface compliance check
	_ RombelReader = (*roster.Service)(nil)     // interface compliance check
	_ LedgerReader = (*attendance.Service)(nil) // interface compliance check
)

// Service joins the ledger with the rosters it is read against.
type Service struct {
	classes ClassReader
	rombels RombelReader
	ledger  LedgerReader
}

func NewService(classes ClassReader, rombels RombelReader, ledger LedgerReader) *Service {
	return &Service{classes: classes, rombels: rombels, ledger: ledger}
}

// MonthlyRecap recaps a class session's month against its roster snapshot.
func (svc *Service) MonthlyRecap(ctx context.Context, classID string, p Period) (Recap, error) {
	if err := p.Validate(); err != nil {
		return Recap{}, err
	}
	s, err := svc.classes.Get(ctx, classID)
	if err != nil {
		return Recap{}, err
	}
	m, err := svc.ledger.ReadMonthlyPartition(ctx, attendance.NewMonthlyKey(s.ID, p.Year, p.Month))
	if err != nil && err != attendance.ErrNotFound {
		return Recap{}, err
	}
	return Build(p, MembersOf(s.DaftarSiswa), m), nil
}

// SemesterRecap recaps one month of a rombel's semester ledger against its reference array.
// An empty semesterID selects the semester holding the month.
func (svc *Service) SemesterRecap(ctx context.Context, rombelID, semesterID string, p Period) (Recap, error) {
	if err := p.Validate(); err != nil {
		return Recap{}, err
	}
	r, err := svc.rombels.GetRombel(ctx, rombelID)
	if err != nil {
		return Recap{}, err
	}
	if semesterID == "" {
		semesterID = svc.ledger.CurrentSemester(time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC))
	}
	s, err := svc.ledger.ReadSemesterPartition(ctx, attendance.SemesterKey{RombelID: r.ID, SemesterID: semesterID})
	if err != nil && err != attendance.ErrNotFound {
		return Recap{}, err
	}
	return Build(p, MembersOfRefs(r.DaftarSiswaRef), s), nil
}

// MonthlySheet is the editing view of one day of a class session.
func (svc *Service) MonthlySheet(ctx context.Context, classID string, date time.Time) (Sheet, error) {
	s, err := svc.classes.Get(ctx, classID)
	if err != nil {
		return Sheet{}, err
	}
	records, found, err := svc.ledger.ReadMonthlyDay(ctx, s.ID, date)
	if err != nil {
		return Sheet{}, err
	}
	return NewSheet(MembersOf(s.DaftarSiswa), records, found), nil
}

// SemesterSheet is the editing view of one day of a rombel.
func (svc *Service) SemesterSheet(ctx context.Context, rombelID, semesterID string, date time.Time) (Sheet, error) {
	r, err := svc.rombels.GetRombel(ctx, rombelID)
	if err != nil {
		return Sheet{}, err
	}
	entry, found, err := svc.ledger.ReadSemesterDay(ctx, attendance.SemesterKey{RombelID: r.ID, SemesterID: semesterID}, date)
	if err != nil {
		return Sheet{}, err
	}
	return NewSheet(MembersOfRefs(r.DaftarSiswaRef), entry.Records, found), nil
}
