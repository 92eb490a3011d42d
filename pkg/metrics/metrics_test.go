package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	job := "routing-expiry"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "job_success", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "job_failure", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
}

func TestAdmissionMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAdmissionMetrics(reg)
	m.ObserveCredit("granted")
	m.ObserveCredit("insufficient")
	m.ObserveCredit("granted")
	m.ObserveStock("granted")
	m.ObserveRace("won")
	m.ObserveRace("lost")
	m.IncLockRetry()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "credit_admission_decisions_total", "outcome", "granted"); err != nil {
		t.Fatalf("fetch credit granted: %v", err)
	} else if got != 2 {
		t.Fatalf("expected granted=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "vendor_race_outcomes_total", "outcome", "lost"); err != nil {
		t.Fatalf("fetch race lost: %v", err)
	} else if got != 1 {
		t.Fatalf("expected lost=1, got %f", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var jobs *JobMetrics
	jobs.ObserveDuration("x", time.Second)
	jobs.IncSuccess("x")
	jobs.IncFailure("x")

	var admission *AdmissionMetrics
	admission.ObserveCredit("granted")
	admission.ObserveStock("granted")
	admission.ObserveRace("won")
	admission.IncLockRetry()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
