package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterWithCurriesServiceName(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegisterWith(reg, "uniauth-test")
	t.Cleanup(func() { curry(DefaultService) })

	MergesTotal.WithLabelValues(ResultSuccess).Inc()
	PlaceholdersSweptTotal.Add(3)

	if got := testutil.ToFloat64(merges.WithLabelValues("uniauth-test", ResultSuccess)); got != 1 {
		t.Fatalf("expected 1 merge sample, got %v", got)
	}
	if got := testutil.ToFloat64(placeholdersSwept.WithLabelValues("uniauth-test")); got != 3 {
		t.Fatalf("expected 3 swept, got %v", got)
	}

	n, err := testutil.GatherAndCount(reg, "uniauth_merges_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 merge series, got %d", n)
	}
}
