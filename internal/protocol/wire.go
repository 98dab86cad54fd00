package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/NillionNetwork/nilvm/internal/field"
	"github.com/NillionNetwork/nilvm/internal/share"
)

// Messages within this package are plain fixed-width encodings of field
// elements (and small headers), deliberately not the project's external
// protobuf wire format — spec.md §1 treats the gRPC wire definitions as an
// out-of-scope external collaborator; internal/fabric is responsible for
// framing these bytes onto the real wire messages.

// encodeElement serializes one field.Element to its canonical byte width.
func encodeElement(e field.Element) []byte {
	return e.Bytes()
}

// decodeElement parses bytes produced by encodeElement back into a
// field.Element over m.
func decodeElement(m field.Modulus, b []byte) field.Element {
	return field.FromBytes(m, b)
}

// encodeElements concatenates a fixed-width header (count) with each
// element's canonical bytes, for batching several field elements into one
// round message; none of this package's protocols calls it.
func encodeElements(es []field.Element) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(es)))
	for _, e := range es {
		out = append(out, encodeElement(e)...)
	}
	return out
}

func decodeElements(m field.Modulus, width int, b []byte) ([]field.Element, error) {
	if len(b) < 4 {
		return nil, errors.New("protocol: truncated element list header")
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]
	if len(b) != n*width {
		return nil, errors.Errorf("protocol: element list length mismatch: want %d got %d", n*width, len(b))
	}
	out := make([]field.Element, n)
	for i := 0; i < n; i++ {
		out[i] = decodeElement(m, b[i*width:(i+1)*width])
	}
	return out, nil
}

func elementWidth(m field.Modulus) int {
	return (m.BitLen() + 7) / 8
}

// encodeShare and decodeShare wrap a single share.Share for MULT's
// point-to-point resharing sub-messages and REVEAL's broadcast.
func encodeShare(s share.Share) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(s.Party))
	return append(out, encodeElement(s.Value)...)
}

func decodeShare(m field.Modulus, b []byte) (share.Share, error) {
	if len(b) < 4 {
		return share.Share{}, errors.New("protocol: truncated share")
	}
	party := share.PartyID(binary.BigEndian.Uint32(b[:4]))
	return share.Share{Party: party, Value: decodeElement(m, b[4:])}, nil
}
