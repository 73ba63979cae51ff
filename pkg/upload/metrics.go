package upload

import (
	"github.com/LeeDigitalWorks/zapupload/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	stageParse     = "parse"
	stageValidate  = "validate"
	stageTransform = "transform"
	stagePersist   = "persist"
	stageSign      = "sign"

	resultSuccess = "success"
)

var (
	// UploadRequestsTotal tracks finished requests by outcome
	UploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapupload",
		Subsystem: "upload",
		Name:      "requests_total",
		Help:      "Total number of upload requests by result",
	}, []string{"result"}) // result: success or an error code such as ValidationRejected

	// UploadBytes tracks the size of accepted files
	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zapupload",
		Subsystem: "upload",
		Name:      "bytes",
		Help:      "Size of accepted uploads in bytes",
		Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10), // 1KiB .. 256MiB
	})

	// UploadStageDuration tracks time spent per pipeline stage
	UploadStageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapupload",
		Subsystem: "upload",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each upload stage",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"}) // stage: parse/validate/transform/persist/sign

	// UploadRejectionsTotal tracks files refused by the policy
	UploadRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapupload",
		Subsystem: "upload",
		Name:      "rejections_total",
		Help:      "Total number of files rejected by the upload policy",
	}, []string{"reason"}) // reason: size/type
)

func init() {
	debug.Registry().MustRegister(
		UploadRequestsTotal,
		UploadBytes,
		UploadStageDuration,
		UploadRejectionsTotal,
	)
}
