package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns Metrics backed by a ManualReader for programmatic
// inspection, isolated from the global provider.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestStageHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	stages := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"parlance.stt.duration", m.STTDuration},
		{"parlance.feedback.duration", m.FeedbackDuration},
		{"parlance.reply.duration", m.ReplyDuration},
		{"parlance.tts.duration", m.TTSDuration},
		{"parlance.turn.duration", m.TurnDuration},
	}
	for _, s := range stages {
		s.h.Record(ctx, 0.2)
		s.h.Record(ctx, 1.4)
	}

	rm := collect(t, reader)
	for _, s := range stages {
		t.Run(s.name, func(t *testing.T) {
			met := findMetric(rm, s.name)
			if met == nil {
				t.Fatalf("metric %q not found", s.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", s.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestTurnCounterAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "es", "ok")
	m.RecordTurn(ctx, "es", "ok")
	m.RecordTurn(ctx, "es", "error")

	rm := collect(t, reader)
	met := findMetric(rm, "parlance.turns")
	if met == nil {
		t.Fatal("turn counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("turn counter is not a sum")
	}
	// Two attribute sets: (es, ok) and (es, error).
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points: want 2, got %d", len(sum.DataPoints))
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total turns: want 3, got %d", total)
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "tutor", "stt", "ok")
	m.RecordProviderError(ctx, "tutor", "stt")
	m.RecordLevelUp(ctx, "ja")

	rm := collect(t, reader)
	for _, name := range []string{
		"parlance.provider.requests",
		"parlance.provider.errors",
		"parlance.levelups",
	} {
		if findMetric(rm, name) == nil {
			t.Errorf("metric %q not recorded", name)
		}
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx)
	m.SessionStarted(ctx)
	m.SessionEnded(ctx)

	rm := collect(t, reader)
	met := findMetric(rm, "parlance.active_sessions")
	if met == nil {
		t.Fatal("gauge not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("gauge has no data")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active sessions: want 1, got %d", got)
	}
}
