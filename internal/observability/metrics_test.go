package observability

import (
	"testing"
	"time"

	"github.com/danmuck/mocapctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("mocapctl", "GET", "/health", 200, 12*time.Millisecond)
	RecordSessionOpened()
	RecordMetadataFrame(64)
	RecordLengthMismatch()
	RecordSessionClosed("ok")

	log.Debug().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestRecordDataFrameCounts(t *testing.T) {
	testlog.Start(t)
	beforeFrames := testutil.ToFloat64(streamFrames.WithLabelValues("data"))
	beforeRecords := testutil.ToFloat64(streamRecords)

	RecordDataFrame(80, 2, time.Millisecond)

	if got := testutil.ToFloat64(streamFrames.WithLabelValues("data")) - beforeFrames; got != 1 {
		t.Fatalf("data frames delta got=%v", got)
	}
	if got := testutil.ToFloat64(streamRecords) - beforeRecords; got != 2 {
		t.Fatalf("records delta got=%v", got)
	}
}
