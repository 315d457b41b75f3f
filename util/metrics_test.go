package util

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestSumMetricValues(t *testing.T) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_sum_total"}, []string{"result"})
	vec.WithLabelValues("success").Add(3)
	vec.WithLabelValues("failure").Add(2)

	assert.Equal(t, 5.0, SumMetricValues(vec))
}
