// Package jsoncodec registers a JSON gRPC codec under the "json" content-subtype.
//
// The treasury, ledger gateway and identity oracle services exchange plain Go
// structs rather than protoc-generated messages. Clients select the codec per
// call with grpc.CallContentSubtype(jsoncodec.Name); servers pick it up from
// the registry automatically.
package jsoncodec

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype the codec is registered under
const Name = "json"

// Codec marshals gRPC messages as JSON
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal encodes v as JSON
func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v
func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Name returns the codec content-subtype
func (Codec) Name() string {
	return Name
}

// CallOption selects the JSON codec for a single call
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(Name)
}
