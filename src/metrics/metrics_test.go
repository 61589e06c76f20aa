package metrics

import (
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	m.Term.Set(5)
	m.GossipMessages.WithLabelValues(GossipDelivered).Inc()
	m.GossipMessages.WithLabelValues(GossipDelivered).Inc()
	m.DedupDropped.Inc()

	if v := testutil.ToFloat64(m.GossipMessages.WithLabelValues(GossipDelivered)); v != 2 {
		t.Fatalf("delivered should be 2, not %v", v)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := ioutil.ReadAll(rec.Body)
	for _, want := range []string{
		"hive_consensus_term 5",
		`hive_gossip_messages_total{result="delivered"} 2`,
		"hive_dedup_dropped_total 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("output should contain %q", want)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ElectionsWon.Inc()
	if v := testutil.ToFloat64(b.ElectionsWon); v != 0 {
		t.Fatalf("registries should not share instruments")
	}
}
