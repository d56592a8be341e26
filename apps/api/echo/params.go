package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/presensi/core"
	"github.com/trezcool/presensi/core/recap"
)

const formatTable = "table"

// dateParam parses the "YYYY-MM-DD" path param name as a UTC date.
func dateParam(ctx echo.Context, name string) (time.Time, error) {
	raw := ctx.Param(name)
	if !core.IsDateKey(raw) {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: name + " must be a valid YYYY-MM-DD date"})
	}
	date, _ := time.Parse(core.DateLayout, raw)
	return date, nil
}

// periodParam reads the year and month query params. Both default to the current month.
func periodParam(ctx echo.Context) (recap.Period, error) {
	now := time.Now()
	p := recap.Period{Year: now.Year(), Month: now.Month()}
	var flds []core.FieldError

	if raw := strings.TrimSpace(ctx.QueryParam("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "year", Error: "year must be a number"})
		}
		p.Year = year
	}
	if raw := strings.TrimSpace(ctx.QueryParam("month")); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "month", Error: "month must be a number"})
		}
		p.Month = time.Month(month)
	}
	if len(flds) > 0 {
		return recap.Period{}, core.NewValidationError(nil, flds...)
	}
	return p, p.Validate()
}

type recapResponse struct {
	recap.Recap
	Header []string `json:"header"`
}

// recapJSON renders r, or its export matrix with ?format=table.
func recapJSON(ctx echo.Context, r recap.Recap) interface{} {
	if ctx.QueryParam("format") == formatTable {
		return r.Table()
	}
	return recapResponse{Recap: r, Header: r.Header()}
}
