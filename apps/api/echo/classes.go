package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/attendance"
	"github.com/trezcool/presensi/core/class"
	"github.com/trezcool/presensi/core/recap"
	"github.com/trezcool/presensi/services/metrics"
)

type activePayload struct {
	Active *bool `json:"active"`
}

type classApi struct {
	svc     *class.Service
	ledger  *attendance.Service
	recap   *recap.Service
	metrics *metrics.Metrics
}

func registerClassAPI(
	g *echo.Group,
	svc *class.Service,
	ledger *attendance.Service,
	recapSvc *recap.Service,
	m *metrics.Metrics,
) {
	api := classApi{svc: svc, ledger: ledger, recap: recapSvc, metrics: m}

	cg := g.Group("/classes")
	cg.GET("", api.list)
	cg.POST("", api.create)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("/active", api.setActive)
	dg.POST("/sync", api.sync)
	dg.GET("/attendance", api.partition)
	dg.GET("/attendance/:date", api.sheet)
	dg.PUT("/attendance/:date", api.writeDay)
	dg.GET("/recap", api.monthRecap)
}

// list returns the caller's sessions. Admins may list another teacher's with ?guru_id=.
func (api *classApi) list(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	guruID := actor.ID
	if id := ctx.QueryParam("guru_id"); id != "" && id != actor.ID {
		if actor.Role != RoleAdmin {
			return errHttpForbidden
		}
		guruID = id
	}
	sessions, err := api.svc.ListByTeacher(ctx.Request().Context(), guruID)
	if err != nil {
		return errors.Wrap(err, "listing class sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

// create opens a session for the caller. Admins may open one for another teacher.
func (api *classApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	var data class.NewSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if data.GuruID == "" || actor.Role != RoleAdmin {
		data.GuruID = actor.ID
	}
	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class session")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *classApi) setActive(ctx echo.Context) error {
	var data activePayload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to activePayload")
	}
	if data.Active == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "active", Error: "active is a required field"})
	}
	if err := api.svc.SetActive(ctx.Request().Context(), ctx.Param("id"), *data.Active); err != nil {
		return errors.Wrap(err, "setting class session active")
	}
	return api.retrieve(ctx)
}

func (api *classApi) sync(ctx echo.Context) error {
	s, err := api.svc.ResyncFromRombel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "syncing class session roster")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *classApi) partition(ctx echo.Context) error {
	p, err := periodParam(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class session")
	}
	m, err := api.ledger.ReadMonthlyPartition(ctx.Request().Context(), attendance.NewMonthlyKey(s.ID, p.Year, p.Month))
	if err != nil {
		return errors.Wrap(err, "reading monthly attendance")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *classApi) sheet(ctx echo.Context) error {
	date, err := dateParam(ctx, "date")
	if err != nil {
		return err
	}
	sheet, err := api.recap.MonthlySheet(ctx.Request().Context(), ctx.Param("id"), date)
	if err != nil {
		return errors.Wrap(err, "building monthly sheet")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

// writeDay replaces the day's records. Present students are not stored.
func (api *classApi) writeDay(ctx echo.Context) error {
	date, err := dateParam(ctx, "date")
	if err != nil {
		return err
	}
	var data dayPayload
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to dayPayload")
	}
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting class session")
	}
	records, err := api.ledger.WriteMonthlyDay(ctx.Request().Context(), s.ID, date, data.Records)
	if err != nil {
		return errors.Wrap(err, "writing monthly attendance")
	}
	api.metrics.LedgerWrite(metrics.LedgerMonthly)
	return ctx.JSON(http.StatusOK, dayPayload{Records: records})
}

func (api *classApi) monthRecap(ctx echo.Context) error {
	p, err := periodParam(ctx)
	if err != nil {
		return err
	}
	r, err := api.recap.MonthlyRecap(ctx.Request().Context(), ctx.Param("id"), p)
	if err != nil {
		return errors.Wrap(err, "building monthly recap")
	}
	return ctx.JSON(http.StatusOK, recapJSON(ctx, r))
}
