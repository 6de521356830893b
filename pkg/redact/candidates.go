package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Candidate is one field the host proposes to erase, with its opaque datatype or value handle.
type Candidate struct {
	ID    string
	Value any
}

// CandidateSet is an ordered field mapping. In JSON it is an object whose key order is kept.
type CandidateSet []Candidate

// IDs returns the field identifiers in order.
func (cs CandidateSet) IDs() []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

// Has reports whether id is present.
func (cs CandidateSet) Has(id string) bool {
	for _, c := range cs {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (cs CandidateSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.ID)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.ID, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (cs *CandidateSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("candidate set must be a JSON object, got %v", tok)
	}

	out := CandidateSet{}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %s: %w", id, err)
		}
		// Later duplicates win but keep the first position, like an associative array.
		if i, dup := seen[id]; dup {
			out[i].Value = v
			continue
		}
		seen[id] = len(out)
		out = append(out, Candidate{ID: id, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*cs = out
	return nil
}
