package btid

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Decoders for retired token layouts. Tokens minted by old SDKs stay in
// flight indefinitely (pinned in dashboards, baked into exported traces),
// so these never go away.

// Version one: [version byte] [object-type byte] [JSON blob]. Everything
// except the object type lives in the blob.
func decodeVersionOne(raw []byte) (SpanIdentity, error) {
	id := SpanIdentity{ObjectType: ObjectType(raw[1])}
	rest := raw[2:]
	if len(rest) > 0 {
		var blob tokenBlob
		if err := json.Unmarshal(rest, &blob); err != nil {
			return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "blob: %s", err)
		}
		applyBlob(&id, blob)
	}
	return id, nil
}

// Version two: [version byte] [object-type byte] [flags byte]
// [16-byte object uuid when flag bit 0 is set] [JSON blob]. Row and span
// ids always live in the blob; only the object id got a binary form.
func decodeVersionTwo(raw []byte) (SpanIdentity, error) {
	if len(raw) < 3 {
		return SpanIdentity{}, errors.Wrap(ErrMalformedToken, "token too short")
	}
	id := SpanIdentity{ObjectType: ObjectType(raw[1])}
	flags := raw[2]
	rest := raw[3:]
	if flags&0x01 != 0 {
		if len(rest) < 16 {
			return SpanIdentity{}, errors.Wrap(ErrMalformedToken, "truncated object id")
		}
		u, err := uuid.FromBytes(rest[:16])
		if err != nil {
			return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "object id: %s", err)
		}
		id.ObjectID = u.String()
		rest = rest[16:]
	}
	if len(rest) > 0 {
		var blob tokenBlob
		if err := json.Unmarshal(rest, &blob); err != nil {
			return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "blob: %s", err)
		}
		applyBlob(&id, blob)
	}
	return id, nil
}
