package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	exporter := NewExporterWithRegistry(":0", reg)

	RecordSessionStart()
	RecordFrame("ok")
	RecordSentenceDelivered("ok")
	RecordSentenceDelivered("silent")
	defer RecordSessionEnd()

	server := httptest.NewServer(exporter.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "voiceloop_sessions_active 1"))
	assert.True(t, strings.Contains(text, `voiceloop_frames_processed_total{status="ok"} 1`))
	assert.True(t, strings.Contains(text, `voiceloop_sentences_delivered_total{status="silent"} 1`))
}

func TestExporterHealthEndpoint(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	server := httptest.NewServer(exporter.mux())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
