// Package redact narrows the host's erasure candidates down to the fields
// the administrator has not chosen to retain.
package redact

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/celerix-dev/celerix-redact/pkg/catalog"
)

var tracer = otel.Tracer("github.com/celerix-dev/celerix-redact/pkg/redact")

var (
	fieldDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redact_field_decisions_total",
		Help: "Candidate fields seen by the redaction filter, by record type and decision",
	}, []string{"record_type", "decision"})

	filterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redact_filter_errors_total",
		Help: "Filter calls aborted because the policy store failed",
	}, []string{"record_type"})
)

// Toggles is the read side of the policy store adapter.
type Toggles interface {
	EraseField(key catalog.ToggleKey) (bool, error)
}

// Filter applies field-level erase/retain toggles to candidate sets.
// It holds no mutable state and is safe for concurrent use.
type Filter struct {
	toggles Toggles
}

// NewFilter returns a filter reading toggles from t.
func NewFilter(t Toggles) *Filter {
	return &Filter{toggles: t}
}

// Apply returns the subset of candidates that should still be erased, in input order.
// A field is dropped only when its toggle explicitly says retain; fields the catalog
// does not know, and ids that cannot name a toggle, are kept. The input is not modified.
func (f *Filter) Apply(ctx context.Context, rt catalog.RecordType, candidates CandidateSet) (CandidateSet, error) {
	_, span := tracer.Start(ctx, "redact.Filter.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("record_type", string(rt)),
		attribute.Int("candidates", len(candidates)),
	)

	out := make(CandidateSet, 0, len(candidates))
	for _, c := range candidates {
		key, err := catalog.DeriveToggleKey(rt, c.ID)
		if errors.Is(err, catalog.ErrNoToggleKey) {
			fieldDecisions.WithLabelValues(string(rt), "erase").Inc()
			out = append(out, c)
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "derive toggle key")
			return nil, err
		}
		erase, err := f.toggles.EraseField(key)
		if err != nil {
			filterErrors.WithLabelValues(string(rt)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "policy store")
			return nil, fmt.Errorf("filtering %s field %s: %w", rt, c.ID, err)
		}
		if !erase {
			fieldDecisions.WithLabelValues(string(rt), "retain").Inc()
			continue
		}
		fieldDecisions.WithLabelValues(string(rt), "erase").Inc()
		out = append(out, c)
	}

	span.SetAttributes(attribute.Int("retained", len(candidates)-len(out)))
	return out, nil
}
