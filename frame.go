// SPDX-License-Identifier: GPL-3.0-or-later

package evinfo

import (
	"encoding/binary"
	"errors"
	"slices"
	"strings"
)

const (
	// HeaderSize is the size in bytes of the fixed frame header.
	HeaderSize = 8

	// ProtoVersion is the protocol version we send.
	ProtoVersion = 2

	// ProtoTypeInfo is the message type of info requests and responses.
	ProtoTypeInfo = 1

	// MaxFrameSize is largest body length the 48-bit size field can carry.
	MaxFrameSize = 1<<48 - 1
)

var (
	// ErrFrameTooLarge indicates a body that does not fit the size field
	// or that exceeds the configured response limit.
	ErrFrameTooLarge = errors.New("evinfo: frame too large")

	// ErrInvalidHeader indicates a header buffer with the wrong size.
	ErrInvalidHeader = errors.New("evinfo: invalid frame header")
)

// Header is the decoded fixed-size frame header.
//
// On the wire the header is a single big endian 64-bit word holding the
// version in the top 8 bits, the type in the next 8 bits and the body
// size in the remaining 48 bits.
type Header struct {
	Version uint8
	Type    uint8
	Size    uint64
}

// AppendHeader appends the wire representation of h to b.
func AppendHeader(b []byte, h Header) []byte {
	word := uint64(h.Version)<<56 | uint64(h.Type)<<48 | h.Size&MaxFrameSize
	return binary.BigEndian.AppendUint64(b, word)
}

// DecodeHeader parses a [HeaderSize] buffer into a [Header].
//
// Version and type are returned as read; they are not validated.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, ErrInvalidHeader
	}
	word := binary.BigEndian.Uint64(b)
	return Header{
		Version: uint8(word >> 56),
		Type:    uint8(word >> 48),
		Size:    word & MaxFrameSize,
	}, nil
}

// EncodeRequest builds the frame for an info query.
//
// The names argument is a list of names separated by any of ';', ':'
// or ','. Each separator becomes a newline and the body always ends with
// a newline. An empty list produces an empty body, which the server
// interprets as a request for its default set of values.
func EncodeRequest(names string) ([]byte, error) {
	return AppendRequest(nil, names)
}

// AppendRequest is like [EncodeRequest] but appends the frame to b.
func AppendRequest(b []byte, names string) ([]byte, error) {
	body := normalizeNames(names)
	if uint64(len(body)) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	b = slices.Grow(b, HeaderSize+len(body))
	b = AppendHeader(b, Header{
		Version: ProtoVersion,
		Type:    ProtoTypeInfo,
		Size:    uint64(len(body)),
	})
	return append(b, body...), nil
}

var namesReplacer = strings.NewReplacer(";", "\n", ":", "\n", ",", "\n")

func normalizeNames(names string) string {
	if names == "" {
		return ""
	}
	body := namesReplacer.Replace(names)
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return body
}
