package cache

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names accepted by CodecByName.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec turns values into cache payloads and back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct {
	api sonic.API
}

// NewJSONCodec returns a JSON codec backed by sonic using encoding/json compatible settings.
func NewJSONCodec() Codec {
	return jsonCodec{api: sonic.ConfigStd}
}

func (c jsonCodec) Name() string { return CodecJSON }

func (c jsonCodec) Marshal(v any) ([]byte, error) {
	return c.api.Marshal(v)
}

func (c jsonCodec) Unmarshal(data []byte, v any) error {
	return c.api.Unmarshal(data, v)
}

type msgpackCodec struct{}

// NewMsgpackCodec returns a codec producing compact msgpack payloads.
func NewMsgpackCodec() Codec {
	return msgpackCodec{}
}

func (msgpackCodec) Name() string { return CodecMsgpack }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// CodecByName resolves a codec from its configuration name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return NewJSONCodec(), nil
	case CodecMsgpack:
		return NewMsgpackCodec(), nil
	default:
		return nil, goerrors.New("unknown cache codec "+strconv.Quote(name), goerrors.CategoryBadInput)
	}
}
