// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DecodeKeyMaterial decodes a key field that may be standard base64 or
// hex. Input that is exactly twice an accepted size and all hex digits
// decodes as hex; base64 of an accepted size never has that length. The
// decoded length must be one of sizes.
//
// Input is a byte slice so private keys never pass through an
// immutable string. The returned slice is owned by the caller, who
// should zero it when it holds private material. encoded is not
// modified.
func DecodeKeyMaterial(encoded []byte, sizes ...int) ([]byte, error) {
	for _, size := range sizes {
		if len(encoded) == 2*size && isHex(encoded) {
			decoded := make([]byte, size)
			if _, err := hex.Decode(decoded, encoded); err != nil {
				zero(decoded)
				return nil, fmt.Errorf("%w: invalid hex key: %v", ErrValidation, err)
			}
			return decoded, nil
		}
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	length, err := base64.StdEncoding.Decode(decoded, encoded)
	if err != nil {
		zero(decoded)
		return nil, fmt.Errorf("%w: key is neither base64 nor hex", ErrValidation)
	}
	for _, size := range sizes {
		if length == size {
			return decoded[:length:length], nil
		}
	}
	zero(decoded)
	return nil, fmt.Errorf("%w: key is %d bytes, want one of %v", ErrValidation, length, sizes)
}

func zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}

func isHex(value []byte) bool {
	for _, character := range value {
		switch {
		case character >= '0' && character <= '9':
		case character >= 'a' && character <= 'f':
		case character >= 'A' && character <= 'F':
		default:
			return false
		}
	}
	return true
}
