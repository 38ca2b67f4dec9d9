package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	UplinkChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkrelay",
			Name:      "uplink_chunks_total",
			Help:      "Chunks handed to an outbound channel.",
		},
		[]string{"channel"},
	)

	UplinkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkrelay",
			Name:      "uplink_bytes_total",
			Help:      "Bytes handed to an outbound channel.",
		},
		[]string{"channel"},
	)

	UplinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkrelay",
			Name:      "uplink_errors_total",
			Help:      "Outbound sends that failed.",
		},
		[]string{"channel"},
	)

	OTASessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkrelay",
			Name:      "ota_sessions_total",
			Help:      "Downlink sessions by outcome.",
		},
		[]string{"status"},
	)

	OTABytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chunkrelay",
			Name:      "ota_bytes_total",
			Help:      "Firmware bytes handed to sinks.",
		},
	)

	CollectorChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkrelay",
			Name:      "collector_chunks_total",
			Help:      "Chunks received by the local collector, by result.",
		},
		[]string{"result"},
	)

	CollectorDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chunkrelay",
			Name:      "collector_devices",
			Help:      "Devices currently held in the collector's device table.",
		},
	)
)

// Registry holds every chunkrelay collector. Commands gather from it.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(UplinkChunks, UplinkBytes, UplinkErrors, OTASessions, OTABytes, CollectorChunks, CollectorDevices)
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
