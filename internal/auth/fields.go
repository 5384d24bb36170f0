// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"fmt"

	"github.com/samber/oops"
)

// Cipher encrypts and decrypts strings. Empty input maps to empty output.
// Decryption failures carry the CIPHER_DECRYPTION_FAILED code.
type Cipher interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

// Record is a loosely typed data row handed over by the data layer.
type Record = map[string]any

// SensitiveFields are the record fields encrypted when no field list is given.
var SensitiveFields = []string{
	"store_name",
	"machine_name",
	"user_notes",
	"location_details",
	"personal_notes",
}

const encryptedMarkerSuffix = "_encrypted"

// EncryptFields returns a copy of record with each named field that is
// present and non-empty encrypted and flagged with "<field>_encrypted".
// A nil fields list selects SensitiveFields.
func EncryptFields(c Cipher, record Record, fields []string) (Record, error) {
	if fields == nil {
		fields = SensitiveFields
	}
	out := make(Record, len(record)+len(fields))
	for k, v := range record {
		out[k] = v
	}

	for _, field := range fields {
		v, ok := out[field]
		if !ok || isEmptyValue(v) {
			continue
		}
		ciphertext, err := c.EncryptString(fmt.Sprint(v))
		if err != nil {
			return nil, oops.With("field", field).Wrap(err)
		}
		out[field] = ciphertext
		out[field+encryptedMarkerSuffix] = true
	}
	return out, nil
}

// DecryptFields reverses EncryptFields. Only fields whose marker is true
// are decrypted; every marker that is present is removed. Fields without
// a marker are passed through, so records written before encryption was
// enabled read back unchanged. A nil fields list selects SensitiveFields.
func DecryptFields(c Cipher, record Record, fields []string) (Record, error) {
	if fields == nil {
		fields = SensitiveFields
	}
	out := make(Record, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, field := range fields {
		marker := field + encryptedMarkerSuffix
		flag, ok := out[marker]
		if !ok {
			continue
		}
		if encrypted, _ := flag.(bool); encrypted {
			if s, isString := out[field].(string); isString && s != "" {
				plaintext, err := c.DecryptString(s)
				if err != nil {
					return nil, oops.With("field", field).Wrap(err)
				}
				out[field] = plaintext
			}
		}
		delete(out, marker)
	}
	return out, nil
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
