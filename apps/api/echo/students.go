package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core/roster"
	"github.com/trezcool/presensi/services/metrics"
)

type studentPayload struct {
	Student roster.Student    `json:"student"`
	Rombel  roster.RombelMeta `json:"rombel"`
}

type importPayload struct {
	Rows []roster.ImportRow `json:"rows"`
}

type studentApi struct {
	svc     *roster.Service
	metrics *metrics.Metrics
}

func registerStudentAPI(g *echo.Group, svc *roster.Service, m *metrics.Metrics) {
	api := studentApi{svc: svc, metrics: m}

	sg := g.Group("/students")
	sg.GET("", api.list)
	sg.POST("", api.create, adminMiddleware())
	sg.POST("/import", api.importRows, adminMiddleware())
	sg.GET("/:nisn", api.retrieve)
	sg.PUT("/:nisn", api.update, adminMiddleware())
	sg.DELETE("/:nisn", api.destroy, adminMiddleware())

	g.GET("/programs", api.programs)
}

func (api *studentApi) list(ctx echo.Context) error {
	students, err := api.svc.ListStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data studentPayload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to studentPayload")
	}
	s, err := api.svc.CreateStudent(ctx.Request().Context(), data.Student, data.Rombel)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) importRows(ctx echo.Context) error {
	var data importPayload
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to importPayload")
	}
	res, err := api.svc.ImportStudents(ctx.Request().Context(), data.Rows)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	api.metrics.Imported(res)
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("nisn"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	old, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("nisn"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	var data studentPayload
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to studentPayload")
	}
	if data.Student.NISN == "" {
		data.Student.NISN = old.NISN
	}
	s, err := api.svc.UpdateStudent(ctx.Request().Context(), old, data.Student, data.Rombel)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	s, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("nisn"))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), s, ctx.QueryParam("program")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) programs(ctx echo.Context) error {
	programs, err := api.svc.ListPrograms(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing programs")
	}
	return ctx.JSON(http.StatusOK, programs)
}
