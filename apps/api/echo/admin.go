package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/presensi/core/roster"
	"github.com/trezcool/presensi/services/metrics"
)

type adminApi struct {
	roster  *roster.Service
	metrics *metrics.Metrics
}

func registerAdminAPI(g *echo.Group, rosterSvc *roster.Service, m *metrics.Metrics) {
	api := adminApi{roster: rosterSvc, metrics: m}

	ag := g.Group("/admin", adminMiddleware())
	ag.POST("/rebuild", api.rebuild)
}

// rebuild rewrites every projection from the authoritative student records.
func (api *adminApi) rebuild(ctx echo.Context) error {
	res, err := api.roster.RebuildProjections(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "rebuilding projections")
	}
	api.metrics.Rebuilt()
	return ctx.JSON(http.StatusOK, res)
}
