// Package strkey encodes and validates the base32 account and contract
// identifiers used on the target network.
// This is part of the Functional Core - all functions are pure with no I/O.
//
// A strkey is base32(version || payload || crc16-xmodem(version || payload)),
// with the checksum stored little-endian. Account keys start with 'G',
// contract ids with 'C'.
package strkey

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
)

// VersionByte selects the kind of key being encoded.
type VersionByte byte

const (
	VersionAccount  VersionByte = 6 << 3 // 'G'
	VersionContract VersionByte = 2 << 3 // 'C'
)

const payloadLen = 32

var (
	// ErrInvalidLength is returned when the decoded key has the wrong size.
	ErrInvalidLength = errors.New("strkey: invalid length")

	// ErrInvalidEncoding is returned when the key is not valid base32.
	ErrInvalidEncoding = errors.New("strkey: invalid base32 encoding")

	// ErrInvalidVersion is returned when the key has an unexpected version byte.
	ErrInvalidVersion = errors.New("strkey: invalid version byte")

	// ErrInvalidChecksum is returned when the checksum does not match.
	ErrInvalidChecksum = errors.New("strkey: invalid checksum")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Encode returns the strkey for a 32-byte payload.
func Encode(version VersionByte, payload []byte) (string, error) {
	if len(payload) != payloadLen {
		return "", ErrInvalidLength
	}

	raw := make([]byte, 0, 1+payloadLen+2)
	raw = append(raw, byte(version))
	raw = append(raw, payload...)
	raw = binary.LittleEndian.AppendUint16(raw, crc16(raw))

	return encoding.EncodeToString(raw), nil
}

// Decode validates a strkey of the expected version and returns its payload.
func Decode(version VersionByte, s string) ([]byte, error) {
	raw, err := encoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(raw) != 1+payloadLen+2 {
		return nil, ErrInvalidLength
	}
	if VersionByte(raw[0]) != version {
		return nil, ErrInvalidVersion
	}

	body, sum := raw[:1+payloadLen], raw[1+payloadLen:]
	if binary.LittleEndian.Uint16(sum) != crc16(body) {
		return nil, ErrInvalidChecksum
	}

	return body[1:], nil
}

// IsValidContract reports whether s is a well-formed contract id.
func IsValidContract(s string) bool {
	_, err := Decode(VersionContract, s)
	return err == nil
}

// IsValidAccount reports whether s is a well-formed account public key.
func IsValidAccount(s string) bool {
	_, err := Decode(VersionAccount, s)
	return err == nil
}

// crc16 is CRC-16/XMODEM (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
