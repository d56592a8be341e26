package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
)

var (
	// errors
	ErrNotFound = errors.New("attendance partition not found")

	nowFunc = time.Now // mockable
)

type Service struct {
	store    core.DocStore
	logger   core.Logger
	validate *validator.Validate
	semester string // overrides SemesterFor when set
}

func NewService(store core.DocStore, logger core.Logger, validate *validator.Validate, semester string) *Service {
	return &Service{store: store, logger: logger, validate: validate, semester: core.CleanString(semester)}
}

// CurrentSemester returns the configured semester, or the one holding date.
func (svc *Service) CurrentSemester(date time.Time) string {
	if svc.semester != "" {
		return svc.semester
	}
	return SemesterFor(date)
}

type dayPayload struct {
	Records []Record `json:"records" validate:"dive"`
}

func (svc *Service) cleanRecords(records []Record) ([]Record, error) {
	cleaned := make([]Record, 0, len(records))
	for _, r := range records {
		r.NISN = core.CleanString(r.NISN)
		r.Status = Status(core.CleanString(string(r.Status)))
		r.Keterangan = core.CleanString(r.Keterangan)
		cleaned = append(cleaned, r)
	}
	if err := svc.validate.Struct(dayPayload{Records: cleaned}); err != nil {
		return nil, err
	}
	return cleaned, nil
}

func requireID(field, value string) error {
	if value == "" {
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: "this field is required"})
	}
	return nil
}

// Monthly ledger

// WriteMonthlyDay replaces the records of date in the class session's monthly partition, creating the
// partition if needed. Present records are dropped: absence from the list means present.
// Only the date's nested field is written, so writes to other dates of the partition are left untouched.
func (svc *Service) WriteMonthlyDay(ctx context.Context, classID string, date time.Time, records []Record) ([]Record, error) {
	key := MonthlyKeyOf(classID, date)
	if err := requireID("class_id", key.ClassID); err != nil {
		return nil, err
	}
	records, err := svc.cleanRecords(records)
	if err != nil {
		return nil, err
	}
	exceptions := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Code() != CodePresent {
			exceptions = append(exceptions, r)
		}
	}

	updates := []core.FieldUpdate{
		core.SetField("class_id", key.ClassID),
		core.SetField("bulan", key.Month),
		core.SetField("tahun", key.Year),
		core.SetField(core.FieldPath("history", DayKey(date)), exceptions),
	}
	if err = svc.store.Update(ctx, CollMonthly, key.ID(), updates, core.Upsert); err != nil {
		return nil, errors.Wrap(err, "writing monthly attendance")
	}
	return exceptions, nil
}

// ReadMonthlyDay returns the stored exceptions of date. found is false when the day was never written.
func (svc *Service) ReadMonthlyDay(ctx context.Context, classID string, date time.Time) (records []Record, found bool, err error) {
	m, err := svc.ReadMonthlyPartition(ctx, MonthlyKeyOf(classID, date))
	if err != nil {
		if err == ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	records, found = m.On(date)
	return records, found, nil
}

func (svc *Service) ReadMonthlyPartition(ctx context.Context, key MonthlyKey) (Monthly, error) {
	var m Monthly
	if err := svc.read(ctx, CollMonthly, key.ID(), &m); err != nil {
		return Monthly{}, err
	}
	return m, nil
}

// Semester ledger

// WriteSemesterDay replaces the entry of date in the rombel's semester partition with the records as given,
// stamped with updatedBy and the current UTC time. Only the date's nested field is written.
func (svc *Service) WriteSemesterDay(ctx context.Context, key SemesterKey, date time.Time, records []Record, updatedBy string) (DailyEntry, error) {
	key.RombelID, key.SemesterID = core.CleanString(key.RombelID), core.CleanString(key.SemesterID)
	if key.SemesterID == "" {
		key.SemesterID = svc.CurrentSemester(date)
	}
	if err := requireID("rombel_id", key.RombelID); err != nil {
		return DailyEntry{}, err
	}
	records, err := svc.cleanRecords(records)
	if err != nil {
		return DailyEntry{}, err
	}

	entry := DailyEntry{
		Records:   records,
		UpdatedBy: updatedBy,
		UpdatedAt: nowFunc().UTC(),
	}
	updates := []core.FieldUpdate{
		core.SetField("rombel_id", key.RombelID),
		core.SetField("semester_id", key.SemesterID),
		core.SetField(core.FieldPath("history", date.Format(core.DateLayout)), entry),
	}
	if err = svc.store.Update(ctx, CollSemester, key.ID(), updates, core.Upsert); err != nil {
		return DailyEntry{}, errors.Wrap(err, "writing semester attendance")
	}
	svc.logger.Debug(fmt.Sprintf("attendance of %s on %s saved by %s", key.ID(), date.Format(core.DateLayout), updatedBy))
	return entry, nil
}

// ReadSemesterDay returns the entry of date. found is false when the date was never written.
func (svc *Service) ReadSemesterDay(ctx context.Context, key SemesterKey, date time.Time) (entry DailyEntry, found bool, err error) {
	if key.SemesterID == "" {
		key.SemesterID = svc.CurrentSemester(date)
	}
	s, err := svc.ReadSemesterPartition(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			return DailyEntry{}, false, nil
		}
		return DailyEntry{}, false, err
	}
	entry, found = s.History[date.Format(core.DateLayout)]
	return entry, found, nil
}

func (svc *Service) ReadSemesterPartition(ctx context.Context, key SemesterKey) (Semester, error) {
	var s Semester
	if err := svc.read(ctx, CollSemester, key.ID(), &s); err != nil {
		return Semester{}, err
	}
	return s, nil
}

func (svc *Service) read(ctx context.Context, coll, id string, v interface{}) error {
	doc, err := svc.store.Get(ctx, coll, id)
	if err != nil {
		if err == core.ErrDocNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "reading attendance")
	}
	return doc.Decode(v)
}
