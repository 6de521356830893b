package redact

import (
	"context"

	"github.com/celerix-dev/celerix-redact/pkg/catalog"
)

// Transform is a host filter callback: it receives the host's candidate set and
// returns the set the host should actually erase.
type Transform func(ctx context.Context, candidates CandidateSet) (CandidateSet, error)

// Host extension points the filter registers against.
const (
	HookOrderProps    = "woocommerce_privacy_remove_order_personal_data_props"
	HookOrderMeta     = "woocommerce_privacy_remove_order_personal_data_meta"
	HookCustomerProps = "woocommerce_privacy_erase_customer_personal_data_props"
)

var hookRecordTypes = map[string]catalog.RecordType{
	HookOrderProps:    catalog.OrderProp,
	HookOrderMeta:     catalog.OrderMeta,
	HookCustomerProps: catalog.CustomerProp,
}

// Hooks builds the lookup table the host adapter dispatches erasure events through.
func Hooks(f *Filter) map[string]Transform {
	table := make(map[string]Transform, len(hookRecordTypes))
	for hook, rt := range hookRecordTypes {
		table[hook] = f.transform(rt)
	}
	return table
}

func (f *Filter) transform(rt catalog.RecordType) Transform {
	return func(ctx context.Context, candidates CandidateSet) (CandidateSet, error) {
		return f.Apply(ctx, rt, candidates)
	}
}
