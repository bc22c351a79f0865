package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BridgePrometheus mirrors the process's registered Prometheus metrics into
// OTel instruments so the periodic OTLP reader exports the same series the
// /metrics endpoint serves. Families present at call time are bound once;
// counters map to observable counters, gauges to observable gauges, and a
// histogram to a <name>_sum / <name>_count pair. Label sets carry over as
// attributes on every observation.
func BridgePrometheus(serviceName string, g prometheus.Gatherer) error {
	meter := otel.Meter(serviceName)

	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics for bridge: %w", err)
	}

	counters := make(map[string]metric.Float64ObservableCounter)
	gauges := make(map[string]metric.Float64ObservableGauge)
	var observables []metric.Observable

	newCounter := func(name, help string) error {
		c, err := meter.Float64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("bridge counter %s: %w", name, err)
		}
		counters[name] = c
		observables = append(observables, c)
		return nil
	}

	for _, mf := range families {
		name := mf.GetName()
		help := mf.GetHelp()
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			if err := newCounter(name, help); err != nil {
				return err
			}
		case dto.MetricType_GAUGE:
			gg, err := meter.Float64ObservableGauge(name, metric.WithDescription(help))
			if err != nil {
				return fmt.Errorf("bridge gauge %s: %w", name, err)
			}
			gauges[name] = gg
			observables = append(observables, gg)
		case dto.MetricType_HISTOGRAM:
			if err := newCounter(name+"_sum", help); err != nil {
				return err
			}
			if err := newCounter(name+"_count", help); err != nil {
				return err
			}
		}
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		fams, err := g.Gather()
		if err != nil {
			return err
		}
		for _, mf := range fams {
			name := mf.GetName()
			for _, m := range mf.Metric {
				attrs := metric.WithAttributes(labelAttrs(m)...)
				switch mf.GetType() {
				case dto.MetricType_COUNTER:
					if c, ok := counters[name]; ok {
						o.ObserveFloat64(c, m.GetCounter().GetValue(), attrs)
					}
				case dto.MetricType_GAUGE:
					if gg, ok := gauges[name]; ok {
						o.ObserveFloat64(gg, m.GetGauge().GetValue(), attrs)
					}
				case dto.MetricType_HISTOGRAM:
					h := m.GetHistogram()
					if c, ok := counters[name+"_sum"]; ok {
						o.ObserveFloat64(c, h.GetSampleSum(), attrs)
					}
					if c, ok := counters[name+"_count"]; ok {
						o.ObserveFloat64(c, float64(h.GetSampleCount()), attrs)
					}
				}
			}
		}
		return nil
	}, observables...)
	if err != nil {
		return fmt.Errorf("register bridge callback: %w", err)
	}
	return nil
}

func labelAttrs(m *dto.Metric) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m.Label))
	for _, l := range m.Label {
		attrs = append(attrs, attribute.String(l.GetName(), l.GetValue()))
	}
	return attrs
}
