// Package pdt decodes program data text blocks: the TLV-encoded metadata
// the module attaches to channel descriptors and pushes for monitored
// channels.
package pdt

import (
	"errors"

	"github.com/rs/zerolog"
)

var ErrShortPacket = errors.New("pdt: short metadata packet")

// Field type IDs from the vendor metadata contract.
const (
	TypeEmpty       uint8 = 0x00
	TypeArtist      uint8 = 0x01
	TypeTitle       uint8 = 0x02
	TypeAlbum       uint8 = 0x03
	TypeRecordLabel uint8 = 0x04
	TypeComposer    uint8 = 0x05
	TypeAltArtist   uint8 = 0x06
	TypeComments    uint8 = 0x07
	TypePromoText1  uint8 = 0x08
	TypePromoText2  uint8 = 0x09
	TypePromoText3  uint8 = 0x0A
	TypePromoText4  uint8 = 0x0B
	TypeSongID      uint8 = 0x0C
	TypeArtistID    uint8 = 0x0D
)

// Metadata is a sparse record of the text fields carried by one block.
// A nil field means "unchanged", not "empty string".
type Metadata struct {
	Artist      *string
	Title       *string
	Album       *string
	RecordLabel *string
	Composer    *string
	AltArtist   *string
	Comments    *string
	PromoText   []string
}

// DecodeBlock parses one metadata TLV block: a field count byte followed by
// (type, length, value) triples. Unknown field types are skipped over using
// their declared length so parsing can continue. b must be sized to the
// true received length; any field crossing its end fails with
// ErrShortPacket.
func DecodeBlock(b []byte, log zerolog.Logger) (Metadata, error) {
	var md Metadata
	if len(b) < 2 {
		return Metadata{}, ErrShortPacket
	}

	fieldCount := int(b[0])
	offset := 1
	for i := 0; i < fieldCount; i++ {
		if offset+2 > len(b) {
			return Metadata{}, ErrShortPacket
		}
		fieldType := b[offset]
		length := int(b[offset+1])
		offset += 2
		if offset+length > len(b) {
			return Metadata{}, ErrShortPacket
		}
		md.setField(fieldType, string(b[offset:offset+length]), log)
		offset += length
	}
	return md, nil
}

func (md *Metadata) setField(fieldType uint8, value string, log zerolog.Logger) {
	switch fieldType {
	case TypeArtist:
		md.Artist = &value
	case TypeTitle:
		md.Title = &value
	case TypeAlbum:
		md.Album = &value
	case TypeRecordLabel:
		md.RecordLabel = &value
	case TypeComposer:
		md.Composer = &value
	case TypeAltArtist:
		md.AltArtist = &value
	case TypeComments:
		md.Comments = &value
	case TypePromoText1, TypePromoText2, TypePromoText3, TypePromoText4:
		md.PromoText = append(md.PromoText, value)
	case TypeEmpty, TypeSongID, TypeArtistID:
		// Recognized but not printable strings; ignored.
	default:
		log.Warn().Uint8("type", fieldType).Msg("unsupported metadata field")
	}
}

// DecodeEvent parses an unsolicited metadata frame: channel id followed by
// a metadata block.
func DecodeEvent(b []byte, log zerolog.Logger) (uint8, Metadata, error) {
	if len(b) < 2 {
		return 0, Metadata{}, ErrShortPacket
	}
	md, err := DecodeBlock(b[1:], log)
	if err != nil {
		return 0, Metadata{}, err
	}
	return b[0], md, nil
}
