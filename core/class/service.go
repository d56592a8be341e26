package class

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/roster"
)

var (
	// errors
	ErrNotFound = errors.New("class session not found")
)

// RosterReader is the part of the roster the sessions read from.
type RosterReader interface {
	GetRombel(ctx context.Context, id string) (roster.Rombel, error)
	StudentsByRombel(ctx context.Context, rombelID string) ([]roster.Student, error)
}

var _ RosterReader = (*roster.Service)(nil) // interface compliance check

type Service struct {
	store    core.DocStore
	roster   RosterReader
	logger   core.Logger
	validate *validator.Validate
}

func NewService(store core.DocStore, rosterSvc RosterReader, logger core.Logger, validate *validator.Validate) *Service {
	return &Service{store: store, roster: rosterSvc, logger: logger, validate: validate}
}

// Create opens an active session; its initial roster is the rombel's reference array.
func (svc *Service) Create(ctx context.Context, ns NewSession) (Session, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Session{}, err
	}
	r, err := svc.roster.GetRombel(ctx, ns.RombelID)
	if err != nil {
		if err == roster.ErrRombelNotFound {
			return Session{}, core.NewValidationError(err, core.FieldError{Field: "rombel_id", Error: err.Error()})
		}
		return Session{}, err
	}

	s := Session{
		ID:            SessionID(ns.MataPelajaran, r.ID),
		GuruID:        ns.GuruID,
		MataPelajaran: ns.MataPelajaran,
		RombelID:      r.ID,
		DaftarSiswa:   studentsFromRefs(r),
		Active:        true,
	}
	if err = svc.store.Set(ctx, CollClasses, s.ID, s); err != nil {
		return Session{}, errors.Wrap(err, "creating class session")
	}
	return s, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Session, error) {
	id = core.CleanString(id)
	if id == "" {
		return Session{}, ErrNotFound
	}
	doc, err := svc.store.Get(ctx, CollClasses, id)
	if err != nil {
		if err == core.ErrDocNotFound {
			return Session{}, ErrNotFound
		}
		return Session{}, errors.Wrap(err, "getting class session")
	}
	var s Session
	if err = doc.Decode(&s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// ListByTeacher returns the sessions of a teacher ordered by subject.
func (svc *Service) ListByTeacher(ctx context.Context, guruID string) ([]Session, error) {
	docs, err := svc.store.Query(ctx, CollClasses, core.Query{
		Where:   []core.Filter{{Field: "guru_id", Value: core.CleanString(guruID)}},
		OrderBy: "mata_pelajaran",
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying class sessions")
	}
	sessions := make([]Session, 0, len(docs))
	for _, doc := range docs {
		var s Session
		if err = doc.Decode(&s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (svc *Service) SetActive(ctx context.Context, id string, active bool) error {
	return svc.update(ctx, id, core.SetField("active", active))
}

// SyncRoster overwrites the session's roster snapshot. Last write wins.
func (svc *Service) SyncRoster(ctx context.Context, id string, students []roster.Student) error {
	if students == nil {
		students = []roster.Student{}
	}
	return svc.update(ctx, id, core.SetField("daftar_siswa", students))
}

// ResyncFromRombel replaces the session's roster with the current authoritative students of its rombel.
func (svc *Service) ResyncFromRombel(ctx context.Context, id string) (Session, error) {
	s, err := svc.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	students, err := svc.roster.StudentsByRombel(ctx, s.RombelID)
	if err != nil {
		return Session{}, err
	}
	if err = svc.SyncRoster(ctx, s.ID, students); err != nil {
		return Session{}, err
	}
	s.DaftarSiswa = students
	svc.logger.Info("synced class session roster", map[string]interface{}{"class_id": s.ID, "students": len(students)})
	return s, nil
}

func (svc *Service) update(ctx context.Context, id string, updates ...core.FieldUpdate) error {
	id = core.CleanString(id)
	if id == "" {
		return ErrNotFound
	}
	if err := svc.store.Update(ctx, CollClasses, id, updates); err != nil {
		if err == core.ErrDocNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "updating class session")
	}
	return nil
}
