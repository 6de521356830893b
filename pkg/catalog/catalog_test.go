package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"customer_ip_address", "Customer IP Address"},
		{"transaction_id", "Transaction ID"},
		{"billing_first_name", "Billing First Name"},
		{"billing_address_1", "Billing Address 1"},
		{"customer_user_agent", "Customer User Agent"},
		{"identity", "Identity"},
		{"zip", "Zip"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, InferDisplayName(tt.in))
		})
	}
}

func TestDeriveToggleKey(t *testing.T) {
	tk, err := DeriveToggleKey(OrderMeta, "Payer PayPal address")
	require.NoError(t, err)
	assert.Equal(t, ToggleKey("woocommerce_pii_remove_order_meta_payer_paypal_address"), tk)

	tk, err = DeriveToggleKey(OrderProp, "billing_email")
	require.NoError(t, err)
	assert.Equal(t, ToggleKey("woocommerce_pii_remove_order_prop_billing_email"), tk)

	_, err = DeriveToggleKey(RecordType("invoice"), "x")
	assert.ErrorIs(t, err, ErrUnknownRecordType)
}

func TestDeriveToggleKey_ControlCharacters(t *testing.T) {
	for _, key := range []string{"billing_phone\textra", "a\nPING", "x\r", "nbsp\u00a0key", "bell\x07"} {
		_, err := DeriveToggleKey(OrderProp, key)
		assert.ErrorIsf(t, err, ErrNoToggleKey, "%q", key)
	}

	_, err := DeriveToggleKey(RecordType("invoice"), "a\tb")
	assert.ErrorIs(t, err, ErrUnknownRecordType)
}

func TestDeriveToggleKey_NamespacesDoNotCollide(t *testing.T) {
	meta, err := DeriveToggleKey(OrderMeta, "Transaction ID")
	require.NoError(t, err)
	prop, err := DeriveToggleKey(OrderProp, "transaction_id")
	require.NoError(t, err)
	assert.NotEqual(t, meta, prop)
}

func TestNew_ToggleKeysUnique(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	seen := make(map[ToggleKey]FieldDefinition)
	for _, rt := range RecordTypes {
		fields := c.ListFields(rt)
		require.NotEmpty(t, fields, rt)
		for _, fd := range fields {
			prev, dup := seen[fd.ToggleKey]
			require.Falsef(t, dup, "%s shared by %v and %v", fd.ToggleKey, prev, fd)
			seen[fd.ToggleKey] = fd
			assert.NotEqual(t, SweepToggleKey, fd.ToggleKey)
		}
	}
	assert.Len(t, seen, 24+4+20)
}

func TestBuild_RejectsCollision(t *testing.T) {
	_, err := build(map[RecordType][]string{
		OrderMeta: {"Payer name", "payer_name"},
	})
	assert.ErrorIs(t, err, ErrDuplicateToggleKey)
}

func TestListFields_OrderAndNames(t *testing.T) {
	c := MustNew()

	props := c.ListFields(OrderProp)
	assert.Equal(t, "customer_ip_address", props[0].Key)
	assert.Equal(t, "Customer IP Address", props[0].DisplayName)
	assert.Equal(t, "transaction_id", props[len(props)-1].Key)

	meta := c.ListFields(OrderMeta)
	assert.Equal(t, "Payer PayPal address", meta[2].DisplayName)

	customer := c.ListFields(CustomerProp)
	assert.Equal(t, "billing_first_name", customer[0].Key)
	assert.Equal(t, "shipping_country", customer[len(customer)-1].Key)

	// Mutating the copy leaves the catalog intact.
	props[0].Key = "changed"
	assert.Equal(t, "customer_ip_address", c.ListFields(OrderProp)[0].Key)
}

func TestLookupAndKnown(t *testing.T) {
	c := MustNew()

	fd, ok := c.Lookup("woocommerce_pii_remove_customer_prop_billing_phone")
	require.True(t, ok)
	assert.Equal(t, CustomerProp, fd.RecordType)
	assert.Equal(t, "billing_phone", fd.Key)

	assert.True(t, c.Known(SweepToggleKey))
	assert.False(t, c.Known("woocommerce_pii_remove_order_prop_favourite_colour"))
}

func TestParseRecordType(t *testing.T) {
	rt, err := ParseRecordType(" ORDER_META ")
	require.NoError(t, err)
	assert.Equal(t, OrderMeta, rt)
	assert.Equal(t, "Order Data [Payment Meta]", rt.Title())

	_, err = ParseRecordType("refund")
	assert.ErrorIs(t, err, ErrUnknownRecordType)
}
