package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"crypto-trigger-engine/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetFeedStatus(t *testing.T) {
	testCases := []struct {
		status model.ConnectionStatus
		want   float64
	}{
		{model.StatusConnecting, 1},
		{model.StatusConnected, 2},
		{model.StatusDisconnected, 0},
		{model.StatusError, -1},
	}
	for _, tc := range testCases {
		SetFeedStatus(model.ExchangeBinance, tc.status)
		got := testutil.ToFloat64(FeedStatus.WithLabelValues("binance"))
		if got != tc.want {
			t.Errorf("status %s: expected %v, got %v", tc.status, tc.want, got)
		}
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	TradesTotal.WithLabelValues("coinbase", "buy").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `trigger_trades_total{exchange="coinbase",side="buy"}`) {
		t.Fatalf("expected trades counter in output, got:\n%s", rec.Body.String())
	}
}
