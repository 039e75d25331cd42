// Package transport exposes the pipeline's six operations over HTTP,
// standing in for the FFI/parcel IPC surface that spec.md §1 places out
// of scope. Routing and error-to-status mapping are grounded on the
// teacher's internal/httpserver + internal/auth/rbac.go idiom.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/assetsvc/assetsvc/internal/asset/tag"
)

// wireValue is the JSON rendering of one tag.Value, per spec.md §6.2's
// tagged-union wire layout (bool / u32 / length-prefixed bytes), with
// bytes carried as base64 since JSON has no native byte-string type.
type wireValue struct {
	Bool  *bool   `json:"bool,omitempty"`
	Num   *uint32 `json:"num,omitempty"`
	Bytes *string `json:"bytes,omitempty"` // base64
}

// wireRecord is one {tag, value} entry of the wire array.
type wireRecord struct {
	Tag   uint32    `json:"tag"`
	Value wireValue `json:"value"`
}

// EncodeAsset renders a into the wire array format.
func EncodeAsset(a tag.Asset) ([]byte, error) {
	records := make([]wireRecord, 0, len(a))
	for t, v := range a {
		wv, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		records = append(records, wireRecord{Tag: uint32(t), Value: wv})
	}
	return json.Marshal(records)
}

func encodeValue(v tag.Value) (wireValue, error) {
	switch v.Type {
	case tag.TypeBool:
		b := v.Bool
		return wireValue{Bool: &b}, nil
	case tag.TypeNumber:
		n := v.Num
		return wireValue{Num: &n}, nil
	case tag.TypeBytes:
		s := base64.StdEncoding.EncodeToString(v.Bytes)
		return wireValue{Bytes: &s}, nil
	default:
		return wireValue{}, fmt.Errorf("unknown value type %d", v.Type)
	}
}

// DecodeAsset parses the wire array format back into a tag.Asset, checking
// the high-nibble/variant-discriminator invariant of §6.2 at construction.
func DecodeAsset(data []byte) (tag.Asset, error) {
	var records []wireRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding wire asset: %w", err)
	}

	out := make(tag.Asset, len(records))
	for _, rec := range records {
		t := tag.Tag(rec.Tag)
		wantType := t.ValueType()

		switch {
		case rec.Value.Bool != nil:
			if wantType != tag.TypeBool {
				return nil, fmt.Errorf("tag %d: bool variant does not match its declared type", rec.Tag)
			}
			out[t] = tag.BoolValue(*rec.Value.Bool)
		case rec.Value.Num != nil:
			if wantType != tag.TypeNumber {
				return nil, fmt.Errorf("tag %d: num variant does not match its declared type", rec.Tag)
			}
			out[t] = tag.NumberValue(*rec.Value.Num)
		case rec.Value.Bytes != nil:
			if wantType != tag.TypeBytes {
				return nil, fmt.Errorf("tag %d: bytes variant does not match its declared type", rec.Tag)
			}
			raw, err := base64.StdEncoding.DecodeString(*rec.Value.Bytes)
			if err != nil {
				return nil, fmt.Errorf("tag %d: invalid base64: %w", rec.Tag, err)
			}
			out[t] = tag.BytesValue(raw)
		default:
			return nil, fmt.Errorf("tag %d: record carries no variant", rec.Tag)
		}
	}
	return out, nil
}
