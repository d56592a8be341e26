package roster

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/presensi/core"
)

// Genders
const (
	GenderMale   = "L"
	GenderFemale = "P"
)

// Collections
const (
	CollStudents = "students"
	CollRombel   = "rombel"
	CollPrograms = "program_keahlian"
)

// UnassignedProgram holds the students imported without a program.
const UnassignedProgram = "Tanpa Program"

// Student is the authoritative student record, keyed by NISN.
type Student struct {
	NISN            string `json:"nisn" bson:"nisn" validate:"required,nisn"`
	Nama            string `json:"nama" bson:"nama" validate:"required"`
	JK              string `json:"jk" bson:"jk" validate:"omitempty,gender"`
	RombelID        string `json:"rombel_id" bson:"rombel_id" validate:"required"`
	NamaRombel      string `json:"nama_rombel,omitempty" bson:"nama_rombel,omitempty"`
	ProgramKeahlian string `json:"program_keahlian,omitempty" bson:"program_keahlian,omitempty"`
	Tingkat         int    `json:"tingkat,omitempty" bson:"tingkat,omitempty" validate:"omitempty,oneof=10 11 12"`
	TanggalMasuk    string `json:"tanggal_masuk" bson:"tanggal_masuk" validate:"omitempty,datekey"`
}

func (s *Student) Clean() {
	s.NISN = core.CleanString(s.NISN)
	s.Nama = core.CleanString(s.Nama)
	s.JK = strings.ToUpper(core.CleanString(s.JK))
	s.RombelID = core.CleanString(s.RombelID)
	s.NamaRombel = core.CleanString(s.NamaRombel)
	s.ProgramKeahlian = core.CleanString(s.ProgramKeahlian)
	s.TanggalMasuk = core.CleanString(s.TanggalMasuk)
}

func (s *Student) Validate(validate *validator.Validate) error {
	s.Clean()
	return validate.Struct(s)
}

// Ref returns the lightweight reference embedded in the student's rombel.
func (s Student) Ref() StudentRef {
	return StudentRef{NISN: s.NISN, Nama: s.Nama, JK: s.JK}
}

// Program returns the program the student is summarized under.
func (s Student) Program() string {
	if s.ProgramKeahlian == "" {
		return UnassignedProgram
	}
	return s.ProgramKeahlian
}

// StudentRef is the reference tuple kept in Rombel.DaftarSiswaRef. It is matched by value, not by NISN.
type StudentRef struct {
	NISN string `json:"nisn" bson:"nisn"`
	Nama string `json:"nama" bson:"nama"`
	JK   string `json:"jk" bson:"jk"`
}

// Rombel is a class-group: a fixed cohort of students sharing a homeroom.
type Rombel struct {
	ID                 string       `json:"id" bson:"id" validate:"required"`
	NamaRombel         string       `json:"nama_rombel" bson:"nama_rombel" validate:"required"`
	Tingkat            int          `json:"tingkat" bson:"tingkat" validate:"omitempty,oneof=10 11 12"`
	ProgramKeahlian    string       `json:"program_keahlian" bson:"program_keahlian"`
	KompetensiKeahlian *string      `json:"kompetensi_keahlian" bson:"kompetensi_keahlian"` // nil at grade 10
	PeriodID           string       `json:"period_id,omitempty" bson:"period_id,omitempty"`
	DaftarSiswaRef     []StudentRef `json:"daftar_siswa_ref" bson:"daftar_siswa_ref"`
}

func (r *Rombel) Validate(validate *validator.Validate) error {
	r.ID = core.CleanString(r.ID)
	r.NamaRombel = core.CleanString(r.NamaRombel)
	r.ProgramKeahlian = core.CleanString(r.ProgramKeahlian)
	r.PeriodID = core.CleanString(r.PeriodID)
	if r.KompetensiKeahlian != nil {
		komp := core.CleanString(*r.KompetensiKeahlian)
		if komp == "" {
			r.KompetensiKeahlian = nil
		} else {
			r.KompetensiKeahlian = &komp
		}
	}
	return validate.Struct(r)
}

// RombelMeta is the metadata used to create a rombel that does not exist yet.
type RombelMeta struct {
	NamaRombel         string  `json:"nama_rombel"`
	Tingkat            int     `json:"tingkat" validate:"omitempty,oneof=10 11 12"`
	ProgramKeahlian    string  `json:"program_keahlian"`
	KompetensiKeahlian *string `json:"kompetensi_keahlian"`
	PeriodID           string  `json:"period_id"`
}

func (m *RombelMeta) Validate(validate *validator.Validate) error {
	m.NamaRombel = core.CleanString(m.NamaRombel)
	m.ProgramKeahlian = core.CleanString(m.ProgramKeahlian)
	m.PeriodID = core.CleanString(m.PeriodID)
	return validate.Struct(m)
}

// NewRombel builds an empty rombel from its code and metadata.
func NewRombel(id string, meta RombelMeta) Rombel {
	name := meta.NamaRombel
	if name == "" {
		name = RombelName(meta.Tingkat, meta.ProgramKeahlian, meta.KompetensiKeahlian, id)
	}
	return Rombel{
		ID:                 id,
		NamaRombel:         name,
		Tingkat:            meta.Tingkat,
		ProgramKeahlian:    meta.ProgramKeahlian,
		KompetensiKeahlian: meta.KompetensiKeahlian,
		PeriodID:           meta.PeriodID,
		DaftarSiswaRef:     []StudentRef{},
	}
}

// RombelName derives a display name: "{tingkat} {kompetensi or program} {last '-' segment of code}".
func RombelName(tingkat int, program string, kompetensi *string, code string) string {
	parts := make([]string, 0, 3)
	if tingkat > 0 {
		parts = append(parts, strconv.Itoa(tingkat))
	}
	if kompetensi != nil && *kompetensi != "" {
		parts = append(parts, *kompetensi)
	} else if program != "" {
		parts = append(parts, program)
	}
	segs := strings.Split(code, "-")
	if last := segs[len(segs)-1]; last != "" {
		parts = append(parts, last)
	}
	return strings.Join(parts, " ")
}

// RombelKey is the document key of a rombel: "{period}-{code}", or the bare code without a period.
func RombelKey(period, code string) string {
	if period == "" {
		return code
	}
	return period + "-" + code
}

// ProgramSummary lists every student of a program, keyed by the program's slug.
type ProgramSummary struct {
	ID          string    `json:"id" bson:"id"`
	NamaProgram string    `json:"nama_program" bson:"nama_program"`
	Students    []Student `json:"students" bson:"students"`
}

// ProgramKey returns the ProgramSummary key of a program name.
func ProgramKey(program string) string {
	if program == "" {
		program = UnassignedProgram
	}
	return core.Slugify(program)
}

// ImportRow is one raw import row; every field is an untyped string.
type ImportRow struct {
	NISN               string `json:"NISN"`
	Nama               string `json:"Nama"`
	JK                 string `json:"JK"`
	Rombel             string `json:"Rombel"`
	Tingkat            string `json:"Tingkat"`
	ProgramKeahlian    string `json:"Program Keahlian"`
	KompetensiKeahlian string `json:"Kompetensi Keahlian"`
	Periode            string `json:"Periode,omitempty"`
}

// ParseTingkat coerces a grade level; anything but 10, 11 or 12 is unset (0).
func ParseTingkat(s string) int {
	n, err := strconv.Atoi(core.CleanString(s))
	if err != nil {
		return 0
	}
	switch n {
	case 10, 11, 12:
		return n
	}
	return 0
}

type ImportResult struct {
	StudentsWritten int `json:"students_written"`
	RombelsTouched  int `json:"rombels_touched"`
	ProgramsTouched int `json:"programs_touched"`
	Skipped         int `json:"skipped"`
}

type RebuildResult struct {
	Students int `json:"students"`
	Rombels  int `json:"rombels"`
	Programs int `json:"programs"`
}
