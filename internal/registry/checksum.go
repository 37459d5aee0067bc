package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Checksum computes the content hash of a schema over a canonicalized
// serialization: every object's keys are sorted recursively, so two
// structurally identical schemas hash the same regardless of the field
// order their source reported them in. Without this, order churn from
// different sources would fabricate spurious schema versions.
func Checksum(schema Schema) (string, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("registry: marshal schema: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("registry: normalize schema: %w", err)
	}

	var b strings.Builder
	if err := writeCanonical(&b, generic); err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// writeCanonical serializes a decoded JSON value with object keys in
// sorted order at every nesting level.
func writeCanonical(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encKey, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("registry: canonicalize key %q: %w", k, err)
			}
			b.Write(encKey)
			b.WriteByte(':')
			if err := writeCanonical(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil

	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	default:
		enc, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("registry: canonicalize value: %w", err)
		}
		b.Write(enc)
		return nil
	}
}
