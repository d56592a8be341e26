package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/core/roster"
	"github.com/trezcool/presensi/services/metrics"
)

type dayPayload struct {
	Records []attendance.Record `json:"records"`
}

type rombelApi struct {
	roster  *roster.Service
	ledger  *attendance.Service
	recap   *recap.Service
	metrics *metrics.Metrics
}

func registerRombelAPI(
	g *echo.Group,
	rosterSvc *roster.Service,
	ledger *attendance.Service,
	recapSvc *recap.Service,
	m *metrics.Metrics,
) {
	api := rombelApi{roster: rosterSvc, ledger: ledger, recap: recapSvc, metrics: m}

	rg := g.Group("/rombels")
	rg.GET("", api.list)
	rg.POST("", api.create, adminMiddleware())

	dg := rg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/students", api.students)
	dg.GET("/attendance", api.partition)
	dg.GET("/attendance/:date", api.sheet)
	dg.PUT("/attendance/:date", api.writeDay)
	dg.GET("/recap", api.monthRecap)
}

func (api *rombelApi) list(ctx echo.Context) error {
	var rombels []roster.Rombel
	var err error
	if raw := ctx.QueryParam("tingkat"); raw != "" {
		tingkat := roster.ParseTingkat(raw)
		if tingkat == 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "tingkat", Error: "tingkat must be one of 10, 11 or 12"})
		}
		rombels, err = api.roster.ListRombelsByTingkat(ctx.Request().Context(), tingkat)
	} else {
		rombels, err = api.roster.ListRombels(ctx.Request().Context())
	}
	if err != nil {
		return errors.Wrap(err, "listing rombels")
	}
	return ctx.JSON(http.StatusOK, rombels)
}

func (api *rombelApi) create(ctx echo.Context) error {
	var data roster.Rombel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rombel")
	}
	r, err := api.roster.CreateRombel(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating rombel")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *rombelApi) retrieve(ctx echo.Context) error {
	r, err := api.roster.GetRombel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting rombel")
	}
	return ctx.JSON(http.StatusOK, r)
}

// students reads the authoritative records, not the rombel's reference array.
func (api *rombelApi) students(ctx echo.Context) error {
	r, err := api.roster.GetRombel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting rombel")
	}
	students, err := api.roster.StudentsByRombel(ctx.Request().Context(), r.ID)
	if err != nil {
		return errors.Wrap(err, "listing rombel students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *rombelApi) semesterKey(ctx echo.Context, date time.Time) attendance.SemesterKey {
	semester := ctx.QueryParam("semester")
	if semester == "" {
		semester = api.ledger.CurrentSemester(date)
	}
	return attendance.SemesterKey{RombelID: ctx.Param("id"), SemesterID: semester}
}

func (api *rombelApi) partition(ctx echo.Context) error {
	s, err := api.ledger.ReadSemesterPartition(ctx.Request().Context(), api.semesterKey(ctx, time.Now()))
	if err != nil {
		return errors.Wrap(err, "reading semester attendance")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *rombelApi) sheet(ctx echo.Context) error {
	date, err := dateParam(ctx, "date")
	if err != nil {
		return err
	}
	key := api.semesterKey(ctx, date)
	sheet, err := api.recap.SemesterSheet(ctx.Request().Context(), key.RombelID, key.SemesterID, date)
	if err != nil {
		return errors.Wrap(err, "building semester sheet")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *rombelApi) writeDay(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	date, err := dateParam(ctx, "date")
	if err != nil {
		return err
	}
	var data dayPayload
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to dayPayload")
	}
	r, err := api.roster.GetRombel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting rombel")
	}
	key := api.semesterKey(ctx, date)
	key.RombelID = r.ID
	entry, err := api.ledger.WriteSemesterDay(ctx.Request().Context(), key, date, data.Records, actor.Email)
	if err != nil {
		return errors.Wrap(err, "writing semester attendance")
	}
	api.metrics.LedgerWrite(metrics.LedgerSemester)
	return ctx.JSON(http.StatusOK, entry)
}

func (api *rombelApi) monthRecap(ctx echo.Context) error {
	p, err := periodParam(ctx)
	if err != nil {
		return err
	}
	r, err := api.recap.SemesterRecap(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("semester"), p)
	if err != nil {
		return errors.Wrap(err, "building semester recap")
	}
	return ctx.JSON(http.StatusOK, recapJSON(ctx, r))
}
