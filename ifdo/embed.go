package ifdo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tidwall/gjson"
)

// Entries are embedded into JPEG files as a COM segment holding the
// entry's canonical JSON, inserted immediately after the APPn run so
// standard image-metadata tooling can read it. Pixel data and every other
// segment are copied verbatim.

const (
	marker_soi = 0xD8
	marker_com = 0xFE

	// COM segment length field is 16 bits and includes itself.
	max_com_payload = 65533
)

var soi = []byte{0xFF, marker_soi}

func isAppMarker(m byte) bool {
	return m >= 0xE0 && m <= 0xEF
}

// isEntryPayload reports whether a COM payload is a previously-embedded
// metadata entry: valid JSON carrying an image-uuid field.
func isEntryPayload(payload []byte) bool {

	if !gjson.ValidBytes(payload) {
		return false
	}

	return gjson.GetBytes(payload, "image-uuid").Exists()
}

// Embed returns a copy of the JPEG body with entry_json embedded as a COM
// segment after the APPn run. Any previously-embedded entry segment is
// replaced, so re-packaging is idempotent. Pixel data is never altered.
func Embed(body []byte, entry_json []byte) ([]byte, error) {

	if len(entry_json) > max_com_payload {
		return nil, fmt.Errorf("Entry JSON is %d bytes, exceeds COM segment limit", len(entry_json))
	}

	if !bytes.HasPrefix(body, soi) {
		return nil, fmt.Errorf("Not a JPEG")
	}

	var out bytes.Buffer
	out.Write(soi)

	i := 2

	for i+4 <= len(body) {

		if body[i] != 0xFF {
			return nil, fmt.Errorf("Malformed JPEG segment at offset %d", i)
		}

		m := body[i+1]

		if !isAppMarker(m) && m != marker_com {
			break
		}

		seg_len := int(binary.BigEndian.Uint16(body[i+2 : i+4]))
		seg_end := i + 2 + seg_len

		if seg_len < 2 || seg_end > len(body) {
			return nil, fmt.Errorf("Malformed JPEG segment length at offset %d", i)
		}

		if m == marker_com && isEntryPayload(body[i+4:seg_end]) {
			// drop the stale entry segment
			i = seg_end
			continue
		}

		out.Write(body[i:seg_end])
		i = seg_end
	}

	out.WriteByte(0xFF)
	out.WriteByte(marker_com)

	var seg_len [2]byte
	binary.BigEndian.PutUint16(seg_len[:], uint16(len(entry_json)+2))

	out.Write(seg_len[:])
	out.Write(entry_json)

	out.Write(body[i:])

	return out.Bytes(), nil
}

// Extract returns the embedded entry JSON from a JPEG body, if present.
// It is the round-trip counterpart to Embed.
func Extract(body []byte) ([]byte, bool) {

	if !bytes.HasPrefix(body, soi) {
		return nil, false
	}

	i := 2

	for i+4 <= len(body) {

		if body[i] != 0xFF {
			return nil, false
		}

		m := body[i+1]

		if !isAppMarker(m) && m != marker_com {
			return nil, false
		}

		seg_len := int(binary.BigEndian.Uint16(body[i+2 : i+4]))
		seg_end := i + 2 + seg_len

		if seg_len < 2 || seg_end > len(body) {
			return nil, false
		}

		if m == marker_com && isEntryPayload(body[i+4:seg_end]) {

			payload := make([]byte, seg_end-(i+4))
			copy(payload, body[i+4:seg_end])

			return payload, true
		}

		i = seg_end
	}

	return nil, false
}
