package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/presensi/core/roster"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObserveRequest(http.MethodGet, "/v1/students", http.StatusOK, 12*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/v1/students", http.StatusOK, 3*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/v1/students/:nisn", http.StatusNotFound, time.Millisecond)
	m.LedgerWrite(LedgerMonthly)
	m.LedgerWrite(LedgerSemester)
	m.LedgerWrite(LedgerSemester)
	m.Imported(roster.ImportResult{StudentsWritten: 3, Skipped: 1})
	m.Rebuilt()

	assert.Equal(t, float64(2), promtest.ToFloat64(m.requests.WithLabelValues("GET", "/v1/students", "200")))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.requests.WithLabelValues("GET", "/v1/students/:nisn", "404")))
	assert.Equal(t, float64(2), promtest.ToFloat64(m.ledgerWrites.WithLabelValues(LedgerSemester)))
	assert.Equal(t, float64(3), promtest.ToFloat64(m.importedRows.WithLabelValues("written")))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.importedRows.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.rebuilds))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `presensi_attendance_day_writes_total{ledger="monthly"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
