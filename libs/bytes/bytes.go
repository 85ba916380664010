package bytes

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte that encodes as upper-case hexadecimal in JSON and
// in logs. Transaction hashes, app hashes, keys and signatures use it.
type HexBytes []byte

// MarshalText encodes a HexBytes value as hexadecimal digits.
// This method is used by json.Marshal.
func (bz HexBytes) MarshalText() ([]byte, error) {
	enc := hex.EncodeToString([]byte(bz))
	return []byte(strings.ToUpper(enc)), nil
}

// UnmarshalText handles decoding of HexBytes from JSON strings.
func (bz *HexBytes) UnmarshalText(data []byte) error {
	input := string(data)
	if input == "" || input == "null" {
		return nil
	}
	dec, err := hex.DecodeString(input)
	if err != nil {
		return fmt.Errorf("decoding hex bytes: %w", err)
	}
	*bz = HexBytes(dec)
	return nil
}

func (bz HexBytes) Bytes() []byte {
	return bz
}

func (bz HexBytes) Equal(other HexBytes) bool {
	return bytes.Equal(bz, other)
}

func (bz HexBytes) String() string {
	return strings.ToUpper(hex.EncodeToString(bz))
}
