package crypto

import (
	"strings"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
)

// SealedPrefix marks a value produced by Sealer.Seal.
const SealedPrefix = "sealed:"

// DefaultSealedFields are sealed when no field list is configured.
var DefaultSealedFields = []string{"password"}

// Sealer encrypts selected string fields of a record payload.
type Sealer struct {
	key    []byte
	fields map[string]bool
}

// NewSealer creates a Sealer keyed from machineID. An empty machineID uses
// MachineID(); an empty field list uses DefaultSealedFields.
func NewSealer(machineID string, fields []string) *Sealer {
	if machineID == "" {
		machineID = MachineID()
	}
	if len(fields) == 0 {
		fields = DefaultSealedFields
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return &Sealer{key: DeriveKey(machineID), fields: set}
}

// Seal returns a copy of payload with every configured string field
// encrypted. Values that are already sealed, empty or not strings are kept.
func (s *Sealer) Seal(payload map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
		str, ok := v.(string)
		if !s.fields[k] || !ok || str == "" || IsSealed(str) {
			continue
		}
		enc, err := Encrypt([]byte(str), s.key)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "seal field "+k, err)
		}
		out[k] = SealedPrefix + enc
	}
	return out, nil
}

// Open reverses Seal on a copy of payload.
func (s *Sealer) Open(payload map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
		str, ok := v.(string)
		if !ok || !IsSealed(str) {
			continue
		}
		plain, err := Decrypt(strings.TrimPrefix(str, SealedPrefix), s.key)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "open field "+k, err)
		}
		out[k] = string(plain)
	}
	return out, nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, SealedPrefix)
}
