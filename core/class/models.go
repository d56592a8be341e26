package class

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/roster"
)

// Collection
const CollClasses = "classes"

var (
	spaceRuns = regexp.MustCompile(`\s+`)

	newUUID = func() string { return uuid.New().String() } // mockable
)

// Session is a teacher's class session of one subject with one rombel.
// DaftarSiswa is a snapshot of the rombel's roster, refreshed only on explicit sync.
type Session struct {
	ID            string           `json:"id" bson:"id"`
	GuruID        string           `json:"guru_id" bson:"guru_id" validate:"required"`
	MataPelajaran string           `json:"mata_pelajaran" bson:"mata_pelajaran" validate:"required"`
	RombelID      string           `json:"rombel_id" bson:"rombel_id" validate:"required"`
	DaftarSiswa   []roster.Student `json:"daftar_siswa" bson:"daftar_siswa"`
	Active        bool             `json:"active" bson:"active"`
}

// NewSession is the payload of Create.
type NewSession struct {
	GuruID        string `json:"guru_id" validate:"required"`
	MataPelajaran string `json:"mata_pelajaran" validate:"required"`
	RombelID      string `json:"rombel_id" validate:"required"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.GuruID = core.CleanString(ns.GuruID)
	ns.MataPelajaran = core.CleanString(ns.MataPelajaran)
	ns.RombelID = core.CleanString(ns.RombelID)
	return validate.Struct(ns)
}

// SessionID builds a session key: "{mapel}_{rombelID}_{uuid}", whitespace runs of mapel replaced by "-".
func SessionID(mapel, rombelID string) string {
	return spaceRuns.ReplaceAllString(core.CleanString(mapel), "-") + "_" + rombelID + "_" + newUUID()
}

// studentsFromRefs expands rombel references into roster entries.
func studentsFromRefs(r roster.Rombel) []roster.Student {
	students := make([]roster.Student, 0, len(r.DaftarSiswaRef))
	for _, ref := range r.DaftarSiswaRef {
		students = append(students, roster.Student{
			NISN:            ref.NISN,
			Nama:            ref.Nama,
			JK:              ref.JK,
			RombelID:        r.ID,
			NamaRombel:      r.NamaRombel,
			ProgramKeahlian: r.ProgramKeahlian,
			Tingkat:         r.Tingkat,
		})
	}
	return students
}
