// SPDX-License-Identifier: MPL-2.0

// Package codec is the CBOR encoding used between the CLI and its fetch
// worker subprocesses.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	// encMode uses Core Deterministic Encoding: sorted map keys and the
	// smallest integer encodings, so equal values encode to equal bytes.
	encMode cbor.EncMode

	// decMode decodes untyped maps as map[string]any and ignores unknown
	// fields. Text strings keep their bytes even when they are not valid
	// UTF-8, matching what the encoder writes for Go strings.
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		UTF8:           cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type (
	// Encoder is a CBOR stream encoder.
	Encoder = cbor.Encoder

	// Decoder is a CBOR stream decoder.
	Decoder = cbor.Decoder
)

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
