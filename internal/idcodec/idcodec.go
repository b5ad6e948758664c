// Package idcodec packs company identifiers into the 32-byte field the
// ledger stores and unpacks them again.
package idcodec

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// Width is the fixed size of an encoded identifier.
const Width = 32

// MaxStringLen leaves room for the NUL terminator of the string form.
const MaxStringLen = Width - 1

// InvalidCompanyID is substituted for identifiers that cannot be decoded.
const InvalidCompanyID = "InvalidCompanyID"

// Encode packs id into 32 bytes. Hex account addresses are left-padded with
// zeros; any other string is copied left-aligned and zero-padded.
func Encode(id string) ([Width]byte, error) {
	var out [Width]byte

	if common.IsHexAddress(id) {
		addr := common.HexToAddress(id)
		copy(out[Width-common.AddressLength:], addr.Bytes())
		return out, nil
	}

	if id == "" {
		return out, fmt.Errorf("%w: empty identifier", domain.ErrInvalidIdentifier)
	}
	if strings.IndexByte(id, 0) >= 0 {
		return out, fmt.Errorf("%w: identifier contains NUL", domain.ErrInvalidIdentifier)
	}
	if !utf8.ValidString(id) {
		return out, fmt.Errorf("%w: identifier is not valid UTF-8", domain.ErrInvalidIdentifier)
	}
	if len(id) > MaxStringLen {
		return out, fmt.Errorf("%w: %d bytes, limit is %d", domain.ErrIdentifierTooLong, len(id), MaxStringLen)
	}

	copy(out[:], id)
	return out, nil
}

// Decode reverses Encode. Addresses come back in EIP-55 checksum form.
func Decode(b [Width]byte) (string, error) {
	head := b[:Width-common.AddressLength]
	tail := b[Width-common.AddressLength:]

	if isZero(head) && !isZero(tail) {
		return common.BytesToAddress(tail).Hex(), nil
	}
	if isZero(b[:]) {
		return "", fmt.Errorf("%w: empty identifier", domain.ErrInvalidIdentifier)
	}
	if b[Width-1] != 0 {
		return "", fmt.Errorf("%w: missing NUL terminator", domain.ErrInvalidIdentifier)
	}

	s := b[:bytes.IndexByte(b[:], 0)]
	if !utf8.Valid(s) {
		return "", fmt.Errorf("%w: invalid UTF-8", domain.ErrInvalidIdentifier)
	}
	return string(s), nil
}

// DecodeOrSentinel decodes b, returning InvalidCompanyID and logging a
// warning instead of failing. Ledger replay relies on this never aborting.
func DecodeOrSentinel(b [Width]byte, log zerolog.Logger) string {
	id, err := Decode(b)
	if err != nil {
		log.Warn().Err(err).
			Str("encoded_company_id", "0x"+hex.EncodeToString(b[:])).
			Msg("Undecodable company id on ledger")
		return InvalidCompanyID
	}
	return id
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
