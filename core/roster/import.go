package roster

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
)

type importSet struct {
	today    string
	students map[string]Student    // by NISN
	metas    map[string]RombelMeta // by rombel ID, first row wins
	order    []string
	skipped  int
}

func newImport(now time.Time) *importSet {
	return &importSet{
		today:    now.Format(core.DateLayout),
		students: make(map[string]Student),
		metas:    make(map[string]RombelMeta),
	}
}

func (imp *importSet) add(s Student, meta RombelMeta) {
	if _, ok := imp.students[s.NISN]; !ok {
		imp.order = append(imp.order, s.NISN)
	}
	if _, ok := imp.metas[s.RombelID]; !ok {
		imp.metas[s.RombelID] = meta
	}
	imp.students[s.NISN] = s
}

// parseRow coerces a raw row. ok is false when the NISN or the rombel code is missing.
func parseRow(row ImportRow, today string) (s Student, meta RombelMeta, ok bool) {
	nisn, code := core.CleanString(row.NISN), core.CleanString(row.Rombel)
	if nisn == "" || code == "" {
		return Student{}, RombelMeta{}, false
	}

	period := core.CleanString(row.Periode)
	meta = RombelMeta{
		Tingkat:         ParseTingkat(row.Tingkat),
		ProgramKeahlian: core.CleanString(row.ProgramKeahlian),
		PeriodID:        period,
	}
	if komp := core.CleanString(row.KompetensiKeahlian); komp != "" {
		meta.KompetensiKeahlian = &komp
	}
	meta.NamaRombel = RombelName(meta.Tingkat, meta.ProgramKeahlian, meta.KompetensiKeahlian, code)

	s = Student{
		NISN:            nisn,
		Nama:            core.CleanString(row.Nama),
		JK:              strings.ToUpper(core.CleanString(row.JK)),
		RombelID:        RombelKey(period, code),
		NamaRombel:      meta.NamaRombel,
		ProgramKeahlian: meta.ProgramKeahlian,
		Tingkat:         meta.Tingkat,
		TanggalMasuk:    today,
	}
	return s, meta, true
}

// applyMeta refreshes the rombel metadata with the non-zero fields of meta.
func applyMeta(r *Rombel, meta RombelMeta) {
	if meta.NamaRombel != "" {
		r.NamaRombel = meta.NamaRombel
	}
	if meta.Tingkat != 0 {
		r.Tingkat = meta.Tingkat
	}
	if meta.ProgramKeahlian != "" {
		r.ProgramKeahlian = meta.ProgramKeahlian
	}
	if meta.KompetensiKeahlian != nil {
		r.KompetensiKeahlian = meta.KompetensiKeahlian
	}
	if meta.PeriodID != "" {
		r.PeriodID = meta.PeriodID
	}
}

func (svc *Service) commitImport(ctx context.Context, imp *importSet) (ImportResult, error) {
	touchedRombels := make(map[string]bool)
	touchedPrograms := make(map[string]string) // key -> display name

	// previous state of re-imported students
	for _, nisn := range imp.order {
		s := imp.students[nisn]
		prev, err := svc.GetStudent(ctx, nisn)
		switch err {
		case nil:
			if prev.TanggalMasuk != "" {
				s.TanggalMasuk = prev.TanggalMasuk
			}
			if prev.RombelID != "" {
				touchedRombels[prev.RombelID] = true
			}
			if _, ok := touchedPrograms[ProgramKey(prev.Program())]; !ok {
				touchedPrograms[ProgramKey(prev.Program())] = prev.Program()
			}
		case ErrStudentNotFound:
		default:
			return ImportResult{}, err
		}
		imp.students[nisn] = s
		touchedRombels[s.RombelID] = true
		touchedPrograms[ProgramKey(s.Program())] = s.Program()
	}

	// rombel reference arrays
	rombelIDs := make([]string, 0, len(touchedRombels))
	for id := range touchedRombels {
		rombelIDs = append(rombelIDs, id)
	}
	sort.Strings(rombelIDs)

	rombels := make([]Rombel, 0, len(rombelIDs))
	for _, id := range rombelIDs {
		meta, fromRows := imp.metas[id]
		r, err := svc.GetRombel(ctx, id)
		switch {
		case err == ErrRombelNotFound:
			if !fromRows {
				continue // the rombel a student left no longer exists
			}
			r = NewRombel(id, meta)
		case err != nil:
			return ImportResult{}, err
		case fromRows:
			applyMeta(&r, meta)
		}

		refs := withoutRefs(r.DaftarSiswaRef, imp.students)
		for _, nisn := range imp.order {
			if s := imp.students[nisn]; s.RombelID == id {
				if s.NamaRombel == "" {
					s.NamaRombel = r.NamaRombel
					imp.students[nisn] = s
				}
				refs = append(refs, s.Ref())
			}
		}
		r.DaftarSiswaRef = refs
		rombels = append(rombels, r)
	}

	b := core.NewBatch()
	for _, nisn := range imp.order {
		b.Set(CollStudents, nisn, imp.students[nisn])
	}
	for _, r := range rombels {
		b.Set(CollRombel, r.ID, r)
	}

	// program summaries
	programKeys := make([]string, 0, len(touchedPrograms))
	for key := range touchedPrograms {
		programKeys = append(programKeys, key)
	}
	sort.Strings(programKeys)

	for _, key := range programKeys {
		ps, err := svc.getSummary(ctx, touchedPrograms[key])
		if err != nil {
			return ImportResult{}, err
		}
		students := make([]Student, 0, len(ps.Students)+len(imp.order))
		for _, s := range ps.Students {
			if _, ok := imp.students[s.NISN]; !ok {
				students = append(students, s)
			}
		}
		for _, nisn := range imp.order {
			if s := imp.students[nisn]; ProgramKey(s.Program()) == key {
				students = append(students, s)
				ps.NamaProgram = s.Program()
			}
		}
		ps.Students = students
		b.Set(CollPrograms, key, ps)
	}

	if _, err := core.CommitChunked(ctx, svc.store, b); err != nil {
		return ImportResult{}, errors.Wrap(err, "committing import")
	}
	return ImportResult{
		StudentsWritten: len(imp.order),
		RombelsTouched:  len(rombels),
		ProgramsTouched: len(programKeys),
		Skipped:         imp.skipped,
	}, nil
}
