package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/presensi/apps/api/echo"
	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
)

func TestServer_home(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Presensi API!", rec.Body.String())

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `presensi_http_requests_total{code="200",method="GET",route="/"} 1`)
}

func TestServer_auth(t *testing.T) {
	app := setup(t)

	badRole, err := GenerateToken(conf, NewClaims(conf, core.Actor{ID: "u-x", Email: "x@smk.sch.id", Role: "kepsek"}))
	require.NoError(t, err)
	otherKey := *conf
	otherKey.SecretKey = "other"
	forged, err := GenerateToken(&otherKey, NewClaims(&otherKey, admin))
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/students",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "unknown role",
			method:   http.MethodGet,
			path:     "/v1/students",
			token:    badRole,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong signature",
			method:   http.MethodGet,
			path:     "/v1/students",
			token:    forged,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "admin only",
			method:   http.MethodPost,
			path:     "/v1/admin/rebuild",
			token:    getToken(t, guru),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "any role reads",
			method:   http.MethodGet,
			path:     "/v1/students",
			token:    getToken(t, guru),
			wantCode: http.StatusOK,
			wantData: []byte("[]"),
		},
	}
	runHttpTests(t, app, tests)
}

func TestStudentAPI(t *testing.T) {
	app := setup(t)
	adminToken := getToken(t, admin)

	body := marchallObj(t, map[string]interface{}{"rows": importRows})
	req, rec := newAuthRequest(http.MethodPost, "/v1/students/import", adminToken, body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, roster.ImportResult{StudentsWritten: 2, RombelsTouched: 1, ProgramsTouched: 1, Skipped: 1}),
	}, rec)

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/1001", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var s roster.Student
		decode(t, rec, &s)
		assert.Equal(t, "Budi", s.Nama)
		assert.Equal(t, roster.GenderMale, s.JK)
		assert.Equal(t, "X-TE1", s.RombelID)
		assert.Equal(t, "10 Teknik Elektro TE1", s.NamaRombel)
	})

	tests := []httpTest{
		{
			name:     "not found",
			method:   http.MethodGet,
			path:     "/v1/students/9999",
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: roster.ErrStudentNotFound.Error()}),
		},
		{
			name:   "invalid update",
			method: http.MethodPut,
			path:   "/v1/students/1001",
			body: marchallObj(t, map[string]interface{}{
				"student": map[string]interface{}{"nama": "Budi", "jk": "x", "rombel_id": "X-TE1"},
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"jk": "jk must be one of L or P"}),
		},
		{
			name:   "nisn cannot change",
			method: http.MethodPut,
			path:   "/v1/students/1001",
			body: marchallObj(t, map[string]interface{}{
				"student": map[string]interface{}{"nisn": "1003", "nama": "Budi", "rombel_id": "X-TE1"},
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"nisn": roster.ErrNISNChanged.Error()}),
		},
		{
			name:   "invalid rombel meta",
			method: http.MethodPost,
			path:   "/v1/students",
			body: marchallObj(t, map[string]interface{}{
				"student": map[string]interface{}{"nisn": "1009", "nama": "Eka", "rombel_id": "XIII-TE1"},
				"rombel":  map[string]interface{}{"tingkat": 13},
			}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "rombel tingkat",
			method:   http.MethodGet,
			path:     "/v1/rombels?tingkat=13",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"tingkat": "tingkat must be one of 10, 11 or 12"}),
		},
	}
	runHttpTests(t, app, tests)

	t.Run("move", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"student": map[string]interface{}{"nama": "Siti Aminah", "jk": "P", "rombel_id": "XI-TKJ1"},
			"rombel":  map[string]interface{}{"tingkat": 11, "program_keahlian": "TKJ"},
		})
		req, rec := newAuthRequest(http.MethodPut, "/v1/students/1002", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/rombels/XI-TKJ1", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var r roster.Rombel
		decode(t, rec, &r)
		assert.Equal(t, "11 TKJ TKJ1", r.NamaRombel)
		assert.Equal(t, []roster.StudentRef{{NISN: "1002", Nama: "Siti Aminah", JK: "P"}}, r.DaftarSiswaRef)

		req, rec = newAuthRequest(http.MethodGet, "/v1/students/1002", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var s roster.Student
		decode(t, rec, &s)
		assert.Equal(t, "11 TKJ TKJ1", s.NamaRombel)
		assert.Equal(t, 11, s.Tingkat)

		req, rec = newAuthRequest(http.MethodGet, "/v1/rombels/X-TE1/students", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var students []roster.Student
		decode(t, rec, &students)
		require.Len(t, students, 1)
		assert.Equal(t, "1001", students[0].NISN)
	})

	t.Run("destroy", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/students/1001", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/students/1001", adminToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/rombels/X-TE1", adminToken)
		app.ServeHTTP(rec, req)
		var r roster.Rombel
		decode(t, rec, &r)
		assert.Empty(t, r.DaftarSiswaRef)
	})

	t.Run("rebuild", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/admin/rebuild", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, roster.RebuildResult{Students: 1, Rombels: 2, Programs: 2}),
		}, rec)
	})
}

func TestRombelAPI_attendance(t *testing.T) {
	app := setup(t)
	importStudents(t, app)
	guruToken := getToken(t, guru)

	path := "/v1/rombels/X-TE1/attendance/2024-07-15?semester=2024-2025-ganjil"
	body := marchallObj(t, map[string]interface{}{"records": []attendance.Record{
		{NISN: "1001", Status: attendance.StatusSakit, Keterangan: "demam"},
		{NISN: "1002", Status: attendance.StatusHadir},
	}})
	req, rec := newAuthRequest(http.MethodPut, path, guruToken, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entry attendance.DailyEntry
	decode(t, rec, &entry)
	assert.Equal(t, guru.Email, entry.UpdatedBy)
	assert.Len(t, entry.Records, 2)

	t.Run("sheet", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var sheet recap.Sheet
		decode(t, rec, &sheet)
		assert.True(t, sheet.Taken)
		assert.ElementsMatch(t, []recap.SheetRow{
			{NISN: "1001", Nama: "Budi", Status: attendance.CodeSick, Keterangan: "demam"},
			{NISN: "1002", Nama: "Siti", Status: attendance.CodePresent},
		}, sheet.Rows)

		req, rec = newAuthRequest(http.MethodGet, "/v1/rombels/X-TE1/attendance/2024-07-16?semester=2024-2025-ganjil", guruToken)
		app.ServeHTTP(rec, req)
		decode(t, rec, &sheet)
		assert.False(t, sheet.Taken)
	})

	t.Run("partition", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/rombels/X-TE1/attendance?semester=2024-2025-ganjil", guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var s attendance.Semester
		decode(t, rec, &s)
		assert.Equal(t, "2024-2025-ganjil", s.SemesterID)
		assert.Contains(t, s.History, "2024-07-15")

		req, rec = newAuthRequest(http.MethodGet, "/v1/rombels/X-TE1/attendance?semester=2023-2024-genap", guruToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("recap table", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/rombels/X-TE1/recap?semester=2024-2025-ganjil&year=2024&month=7&format=table", guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var table [][]string
		decode(t, rec, &table)
		require.Len(t, table, 3)
		assert.Len(t, table[0], 3+31+5)
		for _, row := range table[1:] {
			switch row[1] {
			case "1001":
				assert.Equal(t, "S", row[3+14])
				assert.Equal(t, "-", row[3+15])
				assert.Equal(t, []string{"1", "0", "0", "0", "0"}, row[len(row)-5:])
			case "1002":
				assert.Equal(t, "H", row[3+14])
				assert.Equal(t, []string{"0", "0", "0", "1", "0"}, row[len(row)-5:])
			default:
				t.Errorf("unexpected row %v", row)
			}
		}
	})

	tests := []httpTest{
		{
			name:     "bad date",
			method:   http.MethodPut,
			path:     "/v1/rombels/X-TE1/attendance/2024-02-30",
			body:     body,
			token:    guruToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "date must be a valid YYYY-MM-DD date"}),
		},
		{
			name:   "bad status",
			method: http.MethodPut,
			path:   path,
			body: marchallObj(t, map[string]interface{}{"records": []map[string]string{
				{"nisn": "1001", "status": "bolos"},
			}}),
			token:    guruToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"status": "status must be one of S, I, A, H, hadir, sakit, izin, alpha or terlambat",
			}),
		},
		{
			name:     "bad period",
			method:   http.MethodGet,
			path:     "/v1/rombels/X-TE1/recap?year=2024&month=13",
			token:    guruToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"month": "month must be between 1 and 12"}),
		},
		{
			name:     "unknown rombel recap",
			method:   http.MethodGet,
			path:     "/v1/rombels/XII-X/recap?year=2024&month=7",
			token:    guruToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: roster.ErrRombelNotFound.Error()}),
		},
		{
			name:     "unknown rombel write",
			method:   http.MethodPut,
			path:     "/v1/rombels/XII-X/attendance/2024-07-15?semester=2024-2025-ganjil",
			body:     body,
			token:    guruToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: roster.ErrRombelNotFound.Error()}),
		},
		{
			name:     "no partition for an unknown rombel",
			method:   http.MethodGet,
			path:     "/v1/rombels/XII-X/attendance?semester=2024-2025-ganjil",
			token:    guruToken,
			wantCode: http.StatusNotFound,
		},
	}
	runHttpTests(t, app, tests)
}

func TestClassAPI(t *testing.T) {
	app := setup(t)
	importStudents(t, app)
	guruToken := getToken(t, guru)

	body := marchallObj(t, class.NewSession{GuruID: "someone-else", MataPelajaran: "Dasar Listrik", RombelID: "X-TE1"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/classes", guruToken, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s class.Session
	decode(t, rec, &s)
	assert.True(t, strings.HasPrefix(s.ID, "Dasar-Listrik_X-TE1_"), s.ID)
	assert.Equal(t, guru.ID, s.GuruID)
	assert.Len(t, s.DaftarSiswa, 2)
	classPath := "/v1/classes/" + s.ID

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classes", guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var sessions []class.Session
		decode(t, rec, &sessions)
		require.Len(t, sessions, 1)
		assert.Equal(t, s.ID, sessions[0].ID)

		req, rec = newAuthRequest(http.MethodGet, "/v1/classes?guru_id=u-guru", getToken(t, admin))
		app.ServeHTTP(rec, req)
		decode(t, rec, &sessions)
		assert.Len(t, sessions, 1)
	})

	t.Run("attendance", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"records": []attendance.Record{
			{NISN: "1001", Status: "A"},
			{NISN: "1002", Status: attendance.StatusHadir},
		}})
		req, rec := newAuthRequest(http.MethodPut, classPath+"/attendance/2024-07-15", guruToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: []byte(`{"records":[{"nisn":"1001","status":"A"}]}`),
		}, rec)

		req, rec = newAuthRequest(http.MethodGet, classPath+"/attendance?year=2024&month=7", guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var m attendance.Monthly
		decode(t, rec, &m)
		assert.Equal(t, map[string][]attendance.Record{"15": {{NISN: "1001", Status: "A"}}}, m.History)

		req, rec = newAuthRequest(http.MethodGet, classPath+"/recap?year=2024&month=7", guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var r struct {
			recap.Recap
			Header []string `json:"header"`
		}
		decode(t, rec, &r)
		assert.Equal(t, "01", r.Header[3])
		require.Len(t, r.Rows, 2)
		for _, row := range r.Rows {
			if row.NISN == "1001" {
				assert.Equal(t, recap.Tally{A: 1}, row.Tally)
				assert.Equal(t, attendance.CodeAbsent, row.Cells[14])
			} else {
				assert.Equal(t, recap.Tally{H: 1}, row.Tally)
			}
		}
	})

	t.Run("deactivate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, classPath+"/active", guruToken, []byte(`{"active":false}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got class.Session
		decode(t, rec, &got)
		assert.False(t, got.Active)
	})

	t.Run("sync", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"rows": []roster.ImportRow{
			{NISN: "1003", Nama: "Andi", JK: "L", Rombel: "X-TE1", Tingkat: "10", ProgramKeahlian: "Teknik Elektro"},
		}})
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/import", getToken(t, admin), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, classPath, guruToken)
		app.ServeHTTP(rec, req)
		var got class.Session
		decode(t, rec, &got)
		assert.Len(t, got.DaftarSiswa, 2) // snapshot until synced

		req, rec = newAuthRequest(http.MethodPost, classPath+"/sync", guruToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &got)
		assert.Len(t, got.DaftarSiswa, 3)
	})

	tests := []httpTest{
		{
			name:     "unknown rombel",
			method:   http.MethodPost,
			path:     "/v1/classes",
			body:     marchallObj(t, class.NewSession{MataPelajaran: "Fisika", RombelID: "XII-X"}),
			token:    guruToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"rombel_id": roster.ErrRombelNotFound.Error()}),
		},
		{
			name:     "other teacher",
			method:   http.MethodGet,
			path:     "/v1/classes?guru_id=u-other",
			token:    guruToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "unknown class",
			method:   http.MethodPut,
			path:     "/v1/classes/nope/attendance/2024-07-15",
			body:     []byte(`{"records":[]}`),
			token:    guruToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: class.ErrNotFound.Error()}),
		},
		{
			name:     "bad date",
			method:   http.MethodGet,
			path:     classPath + "/attendance/15-07-2024",
			token:    guruToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "date must be a valid YYYY-MM-DD date"}),
		},
	}
	runHttpTests(t, app, tests)
}
