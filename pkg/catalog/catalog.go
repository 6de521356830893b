// Package catalog defines which personal-data fields exist per record type,
// how each field maps to its controlling toggle, and how it is labelled.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RecordType is a class of data subject to redaction policy.
type RecordType string

const (
	OrderProp    RecordType = "order_prop"
	OrderMeta    RecordType = "order_meta"
	CustomerProp RecordType = "customer_prop"
)

// RecordTypes lists every record type in presentation order.
var RecordTypes = []RecordType{OrderProp, OrderMeta, CustomerProp}

// ErrUnknownRecordType is returned when a record type has no namespace.
var ErrUnknownRecordType = errors.New("unknown record type")

// ErrNoToggleKey is returned for a field id that cannot name a stored option:
// one holding control characters or whitespace other than plain spaces.
var ErrNoToggleKey = errors.New("field has no toggle key")

// ErrDuplicateToggleKey is returned by New when two fields derive the same toggle key.
var ErrDuplicateToggleKey = errors.New("duplicate toggle key")

// ToggleKey names the stored option controlling one field.
type ToggleKey string

// SweepToggleKey enables the scheduled removal of saved addresses.
const SweepToggleKey ToggleKey = "woocommerce_pii_enable_cron_remove_saved_addresses"

var namespaces = map[RecordType]string{
	OrderProp:    "woocommerce_pii_remove_order_prop_",
	OrderMeta:    "woocommerce_pii_remove_order_meta_",
	CustomerProp: "woocommerce_pii_remove_customer_prop_",
}

var titles = map[RecordType]string{
	OrderProp:    "Order Data",
	OrderMeta:    "Order Data [Payment Meta]",
	CustomerProp: "Customer Account Data",
}

// Valid reports whether rt is a known record type.
func (rt RecordType) Valid() bool {
	_, ok := namespaces[rt]
	return ok
}

// Title is the settings group heading for the record type.
func (rt RecordType) Title() string {
	return titles[rt]
}

// ParseRecordType resolves the textual form of a record type.
func ParseRecordType(s string) (RecordType, error) {
	rt := RecordType(strings.ToLower(strings.TrimSpace(s)))
	if !rt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
	}
	return rt, nil
}

// FieldDefinition is one known field of a record type.
type FieldDefinition struct {
	RecordType  RecordType `json:"record_type"`
	Key         string     `json:"key"`
	DisplayName string     `json:"display_name"`
	ToggleKey   ToggleKey  `json:"toggle_key"`
}

var addressProps = []string{
	"billing_first_name",
	"billing_last_name",
	"billing_company",
	"billing_address_1",
	"billing_address_2",
	"billing_city",
	"billing_postcode",
	"billing_state",
	"billing_country",
	"billing_phone",
	"billing_email",
	"shipping_first_name",
	"shipping_last_name",
	"shipping_company",
	"shipping_address_1",
	"shipping_address_2",
	"shipping_city",
	"shipping_postcode",
	"shipping_state",
	"shipping_country",
}

// Field keys mirror what the host eraser proposes for each record type.
var fieldKeys = map[RecordType][]string{
	OrderProp: concat(
		[]string{"customer_ip_address", "customer_user_agent"},
		addressProps,
		[]string{"customer_id", "transaction_id"},
	),
	OrderMeta: {
		"Payer first name",
		"Payer last name",
		"Payer PayPal address",
		"Transaction ID",
	},
	CustomerProp: addressProps,
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Catalog is the validated, immutable set of field definitions.
type Catalog struct {
	fields map[RecordType][]FieldDefinition
	byKey  map[ToggleKey]FieldDefinition
}

// New builds the default catalog and checks that every field has its own toggle.
func New() (*Catalog, error) {
	return build(fieldKeys)
}

// MustNew is New for package-level initialisation.
func MustNew() *Catalog {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

func build(keys map[RecordType][]string) (*Catalog, error) {
	c := &Catalog{
		fields: make(map[RecordType][]FieldDefinition),
		byKey:  make(map[ToggleKey]FieldDefinition),
	}
	for _, rt := range RecordTypes {
		for _, k := range keys[rt] {
			tk, err := DeriveToggleKey(rt, k)
			if err != nil {
				return nil, err
			}
			if prev, dup := c.byKey[tk]; dup {
				return nil, fmt.Errorf("%w: %s used by %s/%q and %s/%q", ErrDuplicateToggleKey, tk, prev.RecordType, prev.Key, rt, k)
			}
			fd := FieldDefinition{
				RecordType:  rt,
				Key:         k,
				DisplayName: displayName(rt, k),
				ToggleKey:   tk,
			}
			c.fields[rt] = append(c.fields[rt], fd)
			c.byKey[tk] = fd
		}
	}
	return c, nil
}

// Meta keys are already human readable.
func displayName(rt RecordType, key string) string {
	if rt == OrderMeta {
		return key
	}
	return InferDisplayName(key)
}

// ListFields returns the ordered field definitions of a record type.
// The returned slice is a copy.
func (c *Catalog) ListFields(rt RecordType) []FieldDefinition {
	src := c.fields[rt]
	out := make([]FieldDefinition, len(src))
	copy(out, src)
	return out
}

// Lookup finds the field controlled by a toggle key.
func (c *Catalog) Lookup(tk ToggleKey) (FieldDefinition, bool) {
	fd, ok := c.byKey[tk]
	return fd, ok
}

// Known reports whether tk is a field toggle or the sweep toggle.
func (c *Catalog) Known(tk ToggleKey) bool {
	if tk == SweepToggleKey {
		return true
	}
	_, ok := c.byKey[tk]
	return ok
}

// DeriveToggleKey maps (record type, field key) to the option name that controls it.
// The field key is lower-cased with spaces replaced by underscores and prefixed
// with the record type's namespace. Keys holding tabs, newlines or other control
// characters have no toggle and yield ErrNoToggleKey.
func DeriveToggleKey(rt RecordType, fieldKey string) (ToggleKey, error) {
	ns, ok := namespaces[rt]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, string(rt))
	}
	for _, r := range fieldKey {
		if r != ' ' && (unicode.IsSpace(r) || unicode.IsControl(r)) {
			return "", fmt.Errorf("%w: %q", ErrNoToggleKey, fieldKey)
		}
	}
	return ToggleKey(ns + normalize(fieldKey)), nil
}

func normalize(fieldKey string) string {
	return strings.ToLower(strings.ReplaceAll(fieldKey, " ", "_"))
}

var acronyms = map[string]string{
	"ip": "IP",
	"id": "ID",
}

// InferDisplayName turns a snake_case identifier into title-cased words.
// "ip" and "id" tokens render as acronyms.
func InferDisplayName(fieldKey string) string {
	if fieldKey == "" {
		return ""
	}
	// Casers carry state, so each call gets its own.
	caser := cases.Title(language.English)
	words := strings.Split(fieldKey, "_")
	for i, w := range words {
		if a, ok := acronyms[strings.ToLower(w)]; ok {
			words[i] = a
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
