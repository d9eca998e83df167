// Package api defines the GophChat wire contract: the message types, the
// gRPC service description and a typed client. Messages travel as JSON
// through a registered gRPC codec, so browser-side tooling and the
// websocket transport share the same shapes. The service descriptor in
// service.go is hand-written in the shape of protoc-gen-go-grpc output;
// there is no .proto file.
package api

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype under which the JSON codec is
// registered ("application/grpc+json").
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
