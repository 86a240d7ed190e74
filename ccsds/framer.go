package ccsds

import (
	"fmt"
	"io"

	"github.com/spacepacket/spp/decode"
)

// PrimaryHeaderLength is the fixed size, in bytes, of a CCSDS space packet
// primary header.
const PrimaryHeaderLength = 6

// MaxPacketLength is the largest a full packet (header + user data) can
// be: the 16-bit packet_data_length field plus one (per the CCSDS
// encoding of "length minus one") plus the 6-byte header.
const MaxPacketLength = PrimaryHeaderLength + 65536

// PrimaryHeader is the parsed form of a CCSDS space packet's 6-byte
// primary header.
type PrimaryHeader struct {
	Version             int
	Type                int
	SecondaryHeaderFlag bool
	APID                int
	SeqFlags            int
	SequenceCount       int
	DataLength          int // packet_data_length field as encoded: (bytes of user data) - 1
}

// ParsePrimaryHeader decodes the 6-byte primary header in b.
func ParsePrimaryHeader(b []byte) PrimaryHeader {
	return PrimaryHeader{
		Version:             int(b[0] >> 5 & 0x7),
		Type:                int(b[0] >> 4 & 0x1),
		SecondaryHeaderFlag: b[0]&0x08 != 0,
		APID:                (int(b[0]&0x07) << 8) | int(b[1]),
		SeqFlags:             int(b[2] >> 6 & 0x3),
		SequenceCount:       (int(b[2]&0x3F) << 8) | int(b[3]),
		DataLength:          (int(b[4]) << 8) | int(b[5]),
	}
}

// UserDataLength returns the number of bytes of user data following the
// primary header.
func (h PrimaryHeader) UserDataLength() int {
	return h.DataLength + 1
}

// Frame is one framed packet: its parsed primary header, the raw bytes of
// that header, and the user-data bytes that follow it, with any secondary
// header still included (segment reassembly, not framing, is responsible
// for stripping a secondary header from continuation/last segments).
// HeaderBytes lets a caller reconstruct the full packet (header plus user
// data) to hand to decode.Decoder, which decodes the primary header
// itself rather than trusting Header's already-parsed fields.
type Frame struct {
	Header      PrimaryHeader
	HeaderBytes []byte
	UserData    []byte
}

// RecomputeLength returns a copy of header with its packet_data_length
// field rewritten to match userDataLen, for reassembled packets whose
// joined user data no longer matches the length the first segment's
// header declared.
func RecomputeLength(header []byte, userDataLen int) []byte {
	out := append([]byte(nil), header...)
	if len(out) < PrimaryHeaderLength {
		return out
	}
	n := userDataLen - 1
	out[4] = byte(n >> 8)
	out[5] = byte(n)
	return out
}

// ScanFrames reads stream until EOF, splitting it into Frames on CCSDS
// primary-header boundaries and calling onFrame for each one whose APID
// passes apidFilter (a nil apidFilter accepts every APID). A stream that
// ends exactly on a packet boundary is a clean end of stream. A stream
// that ends inside a primary header raises a non-fatal UnderRun warning
// and stops without error. A stream that ends mid-body — a declared packet length extending past
// the remaining bytes — raises a non-fatal UnderRun warning and stops,
// rather than failing the whole scan: whatever was captured so far is
// not returned as a frame, since it cannot be a complete packet.
func ScanFrames(stream io.Reader, apidFilter map[int]bool, sink decode.Sink, onFrame func(Frame) error) error {
	header := make([]byte, PrimaryHeaderLength)
	for {
		n, err := io.ReadFull(stream, header)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			reportUnderRun(sink, -1, "stream ends with a partial primary header")
			return nil
		}
		if err != nil {
			return err
		}

		h := ParsePrimaryHeader(header)
		userData := make([]byte, h.UserDataLength())
		n, err = io.ReadFull(stream, userData)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			reportUnderRun(sink, h.APID, fmt.Sprintf("packet declared %d bytes of user data, stream had %d", h.UserDataLength(), n))
			return nil
		}
		if err != nil {
			return err
		}

		if apidFilter != nil && !apidFilter[h.APID] {
			continue
		}
		headerBytes := append([]byte(nil), header...)
		if err := onFrame(Frame{Header: h, HeaderBytes: headerBytes, UserData: userData}); err != nil {
			return err
		}
	}
}

func reportUnderRun(sink decode.Sink, apid int, message string) {
	if sink == nil {
		return
	}
	sink(decode.Warning{Kind: decode.UnderRun, APID: apid, Message: message})
}
