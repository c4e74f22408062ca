package aerorpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/aerostab/internal/service"
	"google.golang.org/protobuf/types/known/structpb"
)

// decodeStrict unpacks a request document. Unknown fields are rejected so
// that typos in condition or vehicle keys do not silently fall back to zero.
func decodeStrict(in *structpb.Struct, dst any) error {
	if in == nil {
		return fmt.Errorf("%w: request body is required", service.ErrInvalidRequest)
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}
	return nil
}

// decodeLoose unpacks a response document, ignoring fields newer servers add.
func decodeLoose(in *structpb.Struct, dst any) error {
	if in == nil {
		return fmt.Errorf("aerorpc: empty response")
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return fmt.Errorf("aerorpc: %w", err)
	}
	return json.Unmarshal(raw, dst)
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("aerorpc: encode: %w", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("aerorpc: encode: %w", err)
	}
	return out, nil
}
