// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame drop reasons used as the "reason" label.
const (
	ReasonOverflow       = "overflow"
	ReasonOutOfSequence  = "out_of_sequence"
	ReasonStale          = "stale"
	ReasonInvalid        = "invalid"
	ReasonDriverError    = "driver_error"
	ReasonLengthMismatch = "length_mismatch"
	ReasonOrphan         = "orphan"
	ReasonQueueFull      = "queue_full"
	ReasonStackInput     = "stack_input"
)

var (
	// SlicesTotal counts slices received from the transport
	SlicesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t1s_slices_total",
			Help: "Total number of slices received from the transport",
		},
		[]string{"instance"},
	)

	// FramesTotal counts frames completed by reassembly
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t1s_frames_total",
			Help: "Total number of frames reassembled",
		},
		[]string{"instance"},
	)

	// FrameDropsTotal counts frames discarded along the receive path
	FrameDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t1s_frame_drops_total",
			Help: "Total number of frames dropped by reason",
		},
		[]string{"instance", "reason"},
	)

	// FrameSizeBytes tracks reassembled frame length distribution
	FrameSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "t1s_frame_size_bytes",
			Help:    "Size of reassembled frames in bytes",
			Buckets: prometheus.LinearBuckets(64, 128, 12), // 64 .. 1472
		},
		[]string{"instance"},
	)

	// QueueDepth tracks frames waiting for the consumer
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "t1s_queue_depth",
			Help: "Number of frames waiting in the frame queue",
		},
	)

	// StackInputTotal counts network stack injections by result
	StackInputTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t1s_stack_input_total",
			Help: "Total number of frames injected into the network stack",
		},
		[]string{"result"},
	)

	// StackDatagramsTotal counts UDP datagrams delivered to local endpoints
	StackDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t1s_stack_datagrams_total",
			Help: "Total number of UDP datagrams handled by the network stack",
		},
		[]string{"result"},
	)

	// PayloadExtractTotal counts payload extraction outcomes
	PayloadExtractTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "t1s_payload_extract_total",
			Help: "Total number of payload extraction attempts by result",
		},
		[]string{"result"},
	)

	// CaptureRecordsTotal counts pcap records written
	CaptureRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "t1s_capture_records_total",
			Help: "Total number of records written to the capture file",
		},
	)

	// CaptureErrorsTotal counts pcap write failures
	CaptureErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "t1s_capture_errors_total",
			Help: "Total number of capture write failures",
		},
	)

	// MirrorErrorsTotal counts frame mirror publish failures
	MirrorErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "t1s_mirror_errors_total",
			Help: "Total number of frame mirror publish failures",
		},
	)
)
