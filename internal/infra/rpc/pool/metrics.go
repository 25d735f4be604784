package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BackoffSeconds tracks the backoff delay applied before the most
// recent provider rotation.
var BackoffSeconds = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "blockstream_rotation_backoff_seconds",
		Help: "Backoff delay in seconds applied before the last provider rotation",
	},
)
