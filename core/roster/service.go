package roster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
)

var (
	// errors
	ErrStudentNotFound = errors.New("student not found")
	ErrRombelNotFound  = errors.New("rombel not found")
	ErrRombelExists    = errors.New("a rombel with this id already exists")
	ErrStudentExists   = errors.New("a student with this nisn already exists")
	ErrNISNChanged     = errors.New("nisn cannot be changed")

	nowFunc = time.Now // mockable
)

type Service struct {
	store    core.DocStore
	logger   core.Logger
	validate *validator.Validate
}

func NewService(store core.DocStore, logger core.Logger, validate *validator.Validate) *Service {
	return &Service{store: store, logger: logger, validate: validate}
}

// Reads

func (svc *Service) GetStudent(ctx context.Context, nisn string) (Student, error) {
	var s Student
	if err := svc.get(ctx, CollStudents, core.CleanString(nisn), &s); err != nil {
		if err == core.ErrDocNotFound {
			return Student{}, ErrStudentNotFound
		}
		return Student{}, errors.Wrap(err, "getting student")
	}
	return s, nil
}

// StudentsByRombel reads the authoritative records of a rombel's students, ordered by name.
func (svc *Service) StudentsByRombel(ctx context.Context, rombelID string) ([]Student, error) {
	docs, err := svc.store.Query(ctx, CollStudents, core.Query{
		Where:   []core.Filter{{Field: "rombel_id", Value: rombelID}},
		OrderBy: "nama",
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying students by rombel")
	}
	return decodeStudents(docs)
}

// ListStudents flattens every ProgramSummary. Summaries may lag behind the authoritative records.
func (svc *Service) ListStudents(ctx context.Context) ([]Student, error) {
	summaries, err := svc.ListPrograms(ctx)
	if err != nil {
		return nil, err
	}
	var n int
	for _, ps := range summaries {
		n += len(ps.Students)
	}
	students := make([]Student, 0, n)
	for _, ps := range summaries {
		students = append(students, ps.Students...)
	}
	return students, nil
}

func (svc *Service) ListPrograms(ctx context.Context) ([]ProgramSummary, error) {
	docs, err := svc.store.Scan(ctx, CollPrograms)
	if err != nil {
		return nil, errors.Wrap(err, "scanning program summaries")
	}
	summaries := make([]ProgramSummary, 0, len(docs))
	for _, doc := range docs {
		var ps ProgramSummary
		if err = doc.Decode(&ps); err != nil {
			return nil, err
		}
		summaries = append(summaries, ps)
	}
	return summaries, nil
}

func (svc *Service) GetRombel(ctx context.Context, id string) (Rombel, error) {
	var r Rombel
	if err := svc.get(ctx, CollRombel, core.CleanString(id), &r); err != nil {
		if err == core.ErrDocNotFound {
			return Rombel{}, ErrRombelNotFound
		}
		return Rombel{}, errors.Wrap(err, "getting rombel")
	}
	return r, nil
}

// ListRombels returns every rombel ordered by display name.
func (svc *Service) ListRombels(ctx context.Context) ([]Rombel, error) {
	docs, err := svc.store.Query(ctx, CollRombel, core.Query{OrderBy: "nama_rombel"})
	if err != nil {
		return nil, errors.Wrap(err, "querying rombels")
	}
	return decodeRombels(docs)
}

func (svc *Service) ListRombelsByTingkat(ctx context.Context, tingkat int) ([]Rombel, error) {
	docs, err := svc.store.Query(ctx, CollRombel, core.Query{
		Where:   []core.Filter{{Field: "tingkat", Value: tingkat}},
		OrderBy: "nama_rombel",
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying rombels by tingkat")
	}
	return decodeRombels(docs)
}

// Writes

func (svc *Service) CreateRombel(ctx context.Context, r Rombel) (Rombel, error) {
	if err := r.Validate(svc.validate); err != nil {
		return Rombel{}, err
	}
	if _, err := svc.GetRombel(ctx, r.ID); err == nil {
		return Rombel{}, core.NewValidationError(ErrRombelExists, core.FieldError{Field: "id", Error: ErrRombelExists.Error()})
	} else if err != ErrRombelNotFound {
		return Rombel{}, err
	}
	if r.DaftarSiswaRef == nil {
		r.DaftarSiswaRef = []StudentRef{}
	}
	if err := svc.store.Set(ctx, CollRombel, r.ID, r); err != nil {
		return Rombel{}, errors.Wrap(err, "creating rombel")
	}
	return r, nil
}

// SetRombelReferences overwrites a rombel's reference array.
func (svc *Service) SetRombelReferences(ctx context.Context, rombelID string, refs []StudentRef) error {
	if refs == nil {
		refs = []StudentRef{}
	}
	err := svc.store.Update(ctx, CollRombel, rombelID, []core.FieldUpdate{core.SetField("daftar_siswa_ref", refs)})
	if err == core.ErrDocNotFound {
		return ErrRombelNotFound
	}
	return errors.Wrap(err, "setting rombel references")
}

// CreateStudent adds one student manually, through the same projection path as ImportStudents.
func (svc *Service) CreateStudent(ctx context.Context, s Student, meta RombelMeta) (Student, error) {
	if err := s.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	if err := meta.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	if _, err := svc.GetStudent(ctx, s.NISN); err == nil {
		return Student{}, core.NewValidationError(ErrStudentExists, core.FieldError{Field: "nisn", Error: ErrStudentExists.Error()})
	} else if err != ErrStudentNotFound {
		return Student{}, err
	}
	if s.ProgramKeahlian == "" {
		s.ProgramKeahlian = meta.ProgramKeahlian
	}
	if s.Tingkat == 0 {
		s.Tingkat = meta.Tingkat
	}
	if s.TanggalMasuk == "" {
		s.TanggalMasuk = nowFunc().Format(core.DateLayout)
	}

	imp := newImport(nowFunc())
	imp.add(s, meta)
	if _, err := svc.commitImport(ctx, imp); err != nil {
		return Student{}, err
	}
	return svc.GetStudent(ctx, s.NISN)
}

// UpdateStudent overwrites the authoritative record of old.NISN with s and re-syncs both projections.
// meta is used if s moves to a rombel that does not exist yet.
func (svc *Service) UpdateStudent(ctx context.Context, old, s Student, meta RombelMeta) (Student, error) {
	if core.CleanString(old.NISN) != core.CleanString(s.NISN) {
		return Student{}, core.NewValidationError(ErrNISNChanged, core.FieldError{Field: "nisn", Error: ErrNISNChanged.Error()})
	}
	if err := s.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	if err := meta.Validate(svc.validate); err != nil {
		return Student{}, err
	}
	old.Clean()
	if s.TanggalMasuk == "" {
		s.TanggalMasuk = old.TanggalMasuk
	}
	if s.ProgramKeahlian == "" {
		s.ProgramKeahlian = meta.ProgramKeahlian
	}

	b := core.NewBatch()

	oldRef, newRef := old.Ref(), s.Ref()
	if old.RombelID != s.RombelID || oldRef != newRef {
		if old.RombelID != s.RombelID {
			if err := svc.removeRef(ctx, b, old.RombelID, oldRef); err != nil {
				return Student{}, err
			}
		}

		nr, err := svc.GetRombel(ctx, s.RombelID)
		switch {
		case err == ErrRombelNotFound:
			nr = NewRombel(s.RombelID, meta)
			nr.DaftarSiswaRef = []StudentRef{newRef}
			b.Set(CollRombel, nr.ID, nr)
		case err != nil:
			return Student{}, err
		case old.RombelID == s.RombelID:
			// array primitives match by value: swap the tuple
			b.Update(CollRombel, nr.ID, []core.FieldUpdate{
				core.ArrayRemove("daftar_siswa_ref", oldRef),
				core.ArrayUnion("daftar_siswa_ref", newRef),
			})
		default:
			b.Update(CollRombel, nr.ID, []core.FieldUpdate{core.ArrayUnion("daftar_siswa_ref", newRef)})
		}
		if old.RombelID != s.RombelID {
			// the copied rombel fields follow the student
			s.NamaRombel = nr.NamaRombel
			if nr.Tingkat != 0 {
				s.Tingkat = nr.Tingkat
			}
		}
	}
	b.Set(CollStudents, s.NISN, s)

	// program summaries: read-modify-write
	if ProgramKey(old.Program()) != ProgramKey(s.Program()) {
		if err := svc.dropFromSummary(ctx, b, old.Program(), s.NISN); err != nil {
			return Student{}, err
		}
	}
	ps, err := svc.getSummary(ctx, s.Program())
	if err != nil {
		return Student{}, err
	}
	ps.Students = append(withoutNISN(ps.Students, s.NISN), s)
	b.Set(CollPrograms, ps.ID, ps)

	if err = svc.store.Commit(ctx, b); err != nil {
		return Student{}, errors.Wrap(err, "committing student update")
	}
	return s, nil
}

// DeleteStudent removes the student from all three aggregates.
// program names the summary holding the student; empty means s.ProgramKeahlian.
// A wrong program leaves a stale snapshot in the real summary.
func (svc *Service) DeleteStudent(ctx context.Context, s Student, program string) error {
	s.NISN = core.CleanString(s.NISN)
	if s.NISN == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "nisn", Error: "this field is required"})
	}
	if program == "" {
		program = s.Program()
	}

	b := core.NewBatch()
	b.Delete(CollStudents, s.NISN)
	if err := svc.removeRef(ctx, b, s.RombelID, s.Ref()); err != nil {
		return err
	}

	psKey := ProgramKey(program)
	if _, err := svc.store.Get(ctx, CollPrograms, psKey); err == nil {
		b.Update(CollPrograms, psKey, []core.FieldUpdate{core.ArrayRemove("students", s)})
	} else if err != core.ErrDocNotFound {
		return errors.Wrap(err, "getting program summary")
	}

	if err := svc.store.Commit(ctx, b); err != nil {
		return errors.Wrap(err, "committing student deletion")
	}
	return nil
}

// ImportStudents upserts every valid row and merges them into the rombel and program projections.
// Rows without a NISN or a rombel code are skipped. Within the import the last row of a NISN wins.
//
// Projection arrays are keyed by NISN: a re-imported student replaces its previous entries (also in the
// rombel/program it left) instead of adding a second tuple, and keeps its original enrollment date.
// The writes are committed as one atomic batch, chunked when larger than the store's batch limit.
func (svc *Service) ImportStudents(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	imp := newImport(nowFunc())
	for _, row := range rows {
		s, meta, ok := parseRow(row, imp.today)
		if !ok {
			imp.skipped++
			continue
		}
		imp.add(s, meta)
	}
	if len(imp.order) == 0 {
		return ImportResult{Skipped: imp.skipped}, nil
	}
	res, err := svc.commitImport(ctx, imp)
	if err != nil {
		return ImportResult{}, err
	}
	svc.logger.Info(fmt.Sprintf(
		"imported %d students into %d rombels and %d programs (%d rows skipped)",
		res.StudentsWritten, res.RombelsTouched, res.ProgramsTouched, res.Skipped,
	))
	return res, nil
}

// RebuildProjections rewrites every rombel reference array and every program summary from the
// authoritative students collection.
func (svc *Service) RebuildProjections(ctx context.Context) (RebuildResult, error) {
	docs, err := svc.store.Scan(ctx, CollStudents)
	if err != nil {
		return RebuildResult{}, errors.Wrap(err, "scanning students")
	}
	students, err := decodeStudents(docs)
	if err != nil {
		return RebuildResult{}, err
	}
	rombels, err := svc.ListRombels(ctx)
	if err != nil {
		return RebuildResult{}, err
	}
	summaries, err := svc.ListPrograms(ctx)
	if err != nil {
		return RebuildResult{}, err
	}

	refs := make(map[string][]StudentRef)
	byProgram := make(map[string]*ProgramSummary)
	for _, s := range students {
		refs[s.RombelID] = append(refs[s.RombelID], s.Ref())
		key := ProgramKey(s.Program())
		ps, ok := byProgram[key]
		if !ok {
			ps = &ProgramSummary{ID: key, NamaProgram: s.Program()}
			byProgram[key] = ps
		}
		ps.Students = append(ps.Students, s)
	}

	var res RebuildResult
	res.Students = len(students)

	b := core.NewBatch()
	known := make(map[string]bool, len(rombels))
	for _, r := range rombels {
		known[r.ID] = true
		rr := refs[r.ID]
		if rr == nil {
			rr = []StudentRef{}
		}
		b.Update(CollRombel, r.ID, []core.FieldUpdate{core.SetField("daftar_siswa_ref", rr)})
		res.Rombels++
	}
	for _, id := range sortedRefKeys(refs) {
		if known[id] {
			continue
		}
		// students point at a rombel without a document
		var meta RombelMeta
		for _, s := range students {
			if s.RombelID == id {
				meta = RombelMeta{NamaRombel: s.NamaRombel, Tingkat: s.Tingkat, ProgramKeahlian: s.ProgramKeahlian}
				break
			}
		}
		r := NewRombel(id, meta)
		r.DaftarSiswaRef = refs[id]
		b.Set(CollRombel, id, r)
		res.Rombels++
	}

	for _, ps := range summaries {
		if _, ok := byProgram[ps.ID]; !ok {
			b.Update(CollPrograms, ps.ID, []core.FieldUpdate{core.SetField("students", []Student{})})
			res.Programs++
		}
	}
	for _, key := range sortedProgramKeys(byProgram) {
		b.Set(CollPrograms, key, byProgram[key])
		res.Programs++
	}

	if _, err = core.CommitChunked(ctx, svc.store, b); err != nil {
		return RebuildResult{}, errors.Wrap(err, "committing projections")
	}
	svc.logger.Info(fmt.Sprintf("rebuilt projections of %d students: %d rombels, %d programs", res.Students, res.Rombels, res.Programs))
	return res, nil
}

// helpers

func (svc *Service) get(ctx context.Context, coll, id string, v interface{}) error {
	if id == "" {
		return core.ErrDocNotFound
	}
	doc, err := svc.store.Get(ctx, coll, id)
	if err != nil {
		return err
	}
	return doc.Decode(v)
}

// removeRef queues the removal of ref from the rombel, if the rombel exists.
func (svc *Service) removeRef(ctx context.Context, b *core.Batch, rombelID string, ref StudentRef) error {
	if rombelID == "" {
		return nil
	}
	if _, err := svc.store.Get(ctx, CollRombel, rombelID); err != nil {
		if err == core.ErrDocNotFound {
			return nil
		}
		return errors.Wrap(err, "getting rombel")
	}
	b.Update(CollRombel, rombelID, []core.FieldUpdate{core.ArrayRemove("daftar_siswa_ref", ref)})
	return nil
}

// getSummary reads a program summary, or returns an empty one when it does not exist.
func (svc *Service) getSummary(ctx context.Context, program string) (ProgramSummary, error) {
	ps := ProgramSummary{ID: ProgramKey(program), NamaProgram: program}
	if err := svc.get(ctx, CollPrograms, ps.ID, &ps); err != nil && err != core.ErrDocNotFound {
		return ProgramSummary{}, errors.Wrap(err, "getting program summary")
	}
	return ps, nil
}

func (svc *Service) dropFromSummary(ctx context.Context, b *core.Batch, program, nisn string) error {
	key := ProgramKey(program)
	var ps ProgramSummary
	if err := svc.get(ctx, CollPrograms, key, &ps); err != nil {
		if err == core.ErrDocNotFound {
			return nil
		}
		return errors.Wrap(err, "getting program summary")
	}
	b.Update(CollPrograms, key, []core.FieldUpdate{core.SetField("students", withoutNISN(ps.Students, nisn))})
	return nil
}

func withoutNISN(students []Student, nisn string) []Student {
	kept := make([]Student, 0, len(students))
	for _, s := range students {
		if s.NISN != nisn {
			kept = append(kept, s)
		}
	}
	return kept
}

func withoutRefs(refs []StudentRef, drop map[string]Student) []StudentRef {
	kept := make([]StudentRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := drop[ref.NISN]; !ok {
			kept = append(kept, ref)
		}
	}
	return kept
}

func decodeStudents(docs []core.Document) ([]Student, error) {
	students := make([]Student, 0, len(docs))
	for _, doc := range docs {
		var s Student
		if err := doc.Decode(&s); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

func decodeRombels(docs []core.Document) ([]Rombel, error) {
	rombels := make([]Rombel, 0, len(docs))
	for _, doc := range docs {
		var r Rombel
		if err := doc.Decode(&r); err != nil {
			return nil, err
		}
		if r.ID == "" {
			r.ID = doc.ID()
		}
		rombels = append(rombels, r)
	}
	return rombels, nil
}

func sortedRefKeys(m map[string][]StudentRef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedProgramKeys(m map[string]*ProgramSummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
