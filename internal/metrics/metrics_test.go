package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1575/internal/navbits"
	"go1575/internal/tracking"
)

// TestMetrics_Observer tests the tracking observer hooks
func TestMetrics_Observer(t *testing.T) {
	m := New()

	m.EpochCompleted(4, tracking.Record{
		CodeFrequency:    1.023e6,
		CarrierFrequency: 1250,
		Correlation:      tracking.CorrelatorOutputs{IP: 3, QP: 4},
	})
	m.EpochCompleted(4, tracking.Record{Epoch: 1, LostLock: true, CodeFrequency: 1.0229e6, CarrierFrequency: 1260})
	m.EpochCompleted(9, tracking.Record{})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.epochs.WithLabelValues("4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.epochs.WithLabelValues("9")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lostLock.WithLabelValues("4")))
	assert.Equal(t, 1.0229e6, testutil.ToFloat64(m.codeFrequency.WithLabelValues("4")))
	assert.Equal(t, 1260.0, testutil.ToFloat64(m.carrFrequency.WithLabelValues("4")))
	assert.Equal(t, float64(tracking.StatusTracking), testutil.ToFloat64(m.status.WithLabelValues("4")))

	m.ChannelFinished(4, tracking.StatusCompleted, 2)
	m.ChannelFinished(9, tracking.StatusFailed, 1)
	assert.Equal(t, float64(tracking.StatusCompleted), testutil.ToFloat64(m.status.WithLabelValues("4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.finished.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.finished))
}

// TestMetrics_BitsExtracted tests bit counters
func TestMetrics_BitsExtracted(t *testing.T) {
	m := New()
	m.BitsExtracted(2, navbits.Stream{Bits: []navbits.Bit{navbits.One, navbits.Erasure, navbits.Zero}})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.bits.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.erasures.WithLabelValues("2")))

	expected := `
# HELP go1575_bit_erasures_total Navigation bit windows with a zero mean
# TYPE go1575_bit_erasures_total counter
go1575_bit_erasures_total{prn="2"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "go1575_bit_erasures_total"))
}

// TestServer tests the metrics endpoint
func TestServer(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := New()
	m.EpochCompleted(1, tracking.Record{CodeFrequency: 1.023e6})

	srv := NewServer("127.0.0.1:0", m, logger)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
	require.NoError(t, srv.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `go1575_epochs_total{prn="1"} 1`)

	busy := NewServer(srv.Addr(), m, logger)
	assert.Error(t, busy.Start())
}
