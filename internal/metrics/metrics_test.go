package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignIn("success")
	c.RecordSignIn("success")
	c.RecordSignIn("error")
	c.RecordSignOut()
	c.RecordRefresh("success")
	c.RecordNotification("SIGNED_OUT")
	c.RecordStaleWrite("refresh")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.signIns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.signIns.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.signOuts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("SIGNED_OUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.staleWrites.WithLabelValues("refresh")))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).RecordSignOut()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "bandcal_auth_sign_outs_total 1")
}
