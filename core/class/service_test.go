package class

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/roster"
	"github.com/trezcool/presensi/tests"
)

func setup(t *testing.T) (*Service, *roster.Service) {
	db := testutil.OpenStore(t)
	validate, _ := testutil.NewValidator()
	logger := testutil.NewLogger(t)
	rosterSvc := roster.NewService(db, logger, validate)

	_, err := rosterSvc.ImportStudents(context.Background(), []roster.ImportRow{
		{NISN: "1", Nama: "Budi", JK: "L", Rombel: "X-TE1", Tingkat: "10", ProgramKeahlian: "Teknik Elektro"},
		{NISN: "2", Nama: "Siti", JK: "P", Rombel: "X-TE1", Tingkat: "10", ProgramKeahlian: "Teknik Elektro"},
	})
	require.NoError(t, err)

	newUUID = func() string { return "uuid" }
	t.Cleanup(func() { newUUID = defaultUUID })
	return NewService(db, rosterSvc, logger, validate), rosterSvc
}

var defaultUUID = newUUID

func TestSessionID(t *testing.T) {
	tests := []struct {
		mapel, rombel, want string
	}{
		{"Matematika", "X-TE1", "Matematika_X-TE1_abc"},
		{" Bahasa  Indonesia ", "X-TE1", "Bahasa-Indonesia_X-TE1_abc"},
		{"Pendidikan\tAgama Islam", "2024-2025-ganjil-XI-TKJ1", "Pendidikan-Agama-Islam_2024-2025-ganjil-XI-TKJ1_abc"},
	}
	newUUID = func() string { return "abc" }
	defer func() { newUUID = defaultUUID }()

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionID(tt.mapel, tt.rombel))
		})
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	s, err := svc.Create(ctx, NewSession{GuruID: "guru-1", MataPelajaran: "Dasar Listrik", RombelID: "X-TE1"})
	require.NoError(t, err)
	assert.Equal(t, "Dasar-Listrik_X-TE1_uuid", s.ID)
	assert.True(t, s.Active)
	assert.Equal(t, []roster.Student{
		{NISN: "1", Nama: "Budi", JK: "L", RombelID: "X-TE1", NamaRombel: "10 Teknik Elektro TE1", ProgramKeahlian: "Teknik Elektro", Tingkat: 10},
		{NISN: "2", Nama: "Siti", JK: "P", RombelID: "X-TE1", NamaRombel: "10 Teknik Elektro TE1", ProgramKeahlian: "Teknik Elektro", Tingkat: 10},
	}, s.DaftarSiswa)

	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	tests := []struct {
		name string
		ns   NewSession
	}{
		{"missing teacher", NewSession{MataPelajaran: "Fisika", RombelID: "X-TE1"}},
		{"missing subject", NewSession{GuruID: "guru-1", RombelID: "X-TE1"}},
		{"unknown rombel", NewSession{GuruID: "guru-1", MataPelajaran: "Fisika", RombelID: "X-TE9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.ns)
			assert.Error(t, err)
		})
	}
	_, err = svc.Create(ctx, NewSession{GuruID: "guru-1", MataPelajaran: "Fisika", RombelID: "X-TE9"})
	assert.True(t, core.IsValidationError(err))

	_, err = svc.Get(ctx, "nope")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_ListByTeacher(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)

	for i, ns := range []NewSession{
		{GuruID: "guru-1", MataPelajaran: "Matematika", RombelID: "X-TE1"},
		{GuruID: "guru-2", MataPelajaran: "Fisika", RombelID: "X-TE1"},
		{GuruID: "guru-1", MataPelajaran: "Bahasa Inggris", RombelID: "X-TE1"},
	} {
		id := string(rune('a' + i))
		newUUID = func() string { return id }
		_, err := svc.Create(ctx, ns)
		require.NoError(t, err)
	}

	sessions, err := svc.ListByTeacher(ctx, "guru-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "Bahasa Inggris", sessions[0].MataPelajaran)
	assert.Equal(t, "Matematika", sessions[1].MataPelajaran)

	sessions, err = svc.ListByTeacher(ctx, "guru-3")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestService_SetActive(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	s, err := svc.Create(ctx, NewSession{GuruID: "guru-1", MataPelajaran: "Fisika", RombelID: "X-TE1"})
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, s.ID, false))
	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.Equal(t, ErrNotFound, svc.SetActive(ctx, "nope", true))
}

func TestService_SyncRoster(t *testing.T) {
	ctx := context.Background()
	svc, rosterSvc := setup(t)
	s, err := svc.Create(ctx, NewSession{GuruID: "guru-1", MataPelajaran: "Fisika", RombelID: "X-TE1"})
	require.NoError(t, err)

	// the snapshot does not follow the roster by itself
	_, err = rosterSvc.ImportStudents(ctx, []roster.ImportRow{
		{NISN: "3", Nama: "Andi", JK: "L", Rombel: "X-TE1", Tingkat: "10", ProgramKeahlian: "Teknik Elektro"},
	})
	require.NoError(t, err)
	got, err := svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.DaftarSiswa, 2)

	synced, err := svc.ResyncFromRombel(ctx, s.ID)
	require.NoError(t, err)
	got, err = svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, synced, got)

	names := make([]string, 0, len(got.DaftarSiswa))
	for _, st := range got.DaftarSiswa {
		names = append(names, st.Nama)
	}
	assert.Equal(t, []string{"Andi", "Budi", "Siti"}, names)

	// last write wins
	require.NoError(t, svc.SyncRoster(ctx, s.ID, nil))
	got, err = svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DaftarSiswa)

	assert.Equal(t, ErrNotFound, svc.SyncRoster(ctx, "nope", nil))
	_, err = svc.ResyncFromRombel(ctx, "nope")
	assert.Equal(t, ErrNotFound, err)
}
