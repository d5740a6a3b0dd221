package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

type pushRecord struct {
	method string
	path   string
	body   string
}

func newPushgateway(t *testing.T, status int) (*httptest.Server, func() []pushRecord) {
	t.Helper()

	var mu sync.Mutex
	var records []pushRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		records = append(records, pushRecord{method: r.Method, path: r.URL.Path, body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []pushRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]pushRecord(nil), records...)
	}
}

func TestInitDefault_Disabled(t *testing.T) {
	closer, err := InitDefault(Config{Job: "report_mailer"})
	require.NoError(t, err)
	assert.IsType(t, nopCloser{}, closer)
	assert.NoError(t, closer.Close())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Job: "report_mailer"})
	assert.ErrorContains(t, err, "empty pushgateway url")

	_, err = New(Config{PushgatewayURL: "http://localhost:9091"})
	assert.ErrorContains(t, err, "empty job name")
}

func TestMetrics_PushOnClose(t *testing.T) {
	srv, records := newPushgateway(t, http.StatusOK)

	m, err := New(Config{PushgatewayURL: srv.URL, Job: "report_mailer"})
	require.NoError(t, err)

	counter, err := m.MeterProvider().Meter("test").Int64Counter("smtp.sends")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, m.Close())

	got := records()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/metrics/job/report_mailer", got[0].path)
	assert.Contains(t, got[0].body, "smtp_sends")
}

func TestMetrics_PushFailure(t *testing.T) {
	srv, _ := newPushgateway(t, http.StatusInternalServerError)

	m, err := New(Config{PushgatewayURL: srv.URL, Job: "report_mailer"})
	require.NoError(t, err)

	err = m.Close()
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to push metrics")
}

func TestInitDefault_SetsGlobalProvider(t *testing.T) {
	original := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(original) })

	srv, records := newPushgateway(t, http.StatusAccepted)

	closer, err := InitDefault(Config{PushgatewayURL: srv.URL, Job: "report_mailer", PushTimeout: 5})
	require.NoError(t, err)

	counter, err := otel.Meter("test").Int64Counter("report.runs")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, closer.Close())
	require.Len(t, records(), 1)
	assert.Contains(t, records()[0].body, "report_runs")
}

func TestMetrics_PushTimeout(t *testing.T) {
	m := &Metrics{}
	assert.Equal(t, "10s", m.pushTimeout().String())

	m.config.PushTimeout = 3
	assert.Equal(t, "3s", m.pushTimeout().String())
}
