package btid

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrMalformedToken is wrapped into every decode failure so callers can
// distinguish bad input from programming errors.
var ErrMalformedToken = errors.New("malformed identity token")

// Token wire format, current version:
//
//	[version byte] [object-type byte] [compact field count]
//	[count × (field-tag byte + fixed-width bytes)] [JSON blob]
//
// all base64-encoded (URL alphabet, no padding). The compact section holds
// ids with a known fixed binary width: UUID-shaped object ids as 16 raw
// bytes, 16-hex row/span ids as 8, 32-hex as 16. The JSON blob holds
// whatever could not be packed, with absent fields omitted; a token with
// nothing left over omits the blob entirely.
const (
	versionOne   byte = 1
	versionTwo   byte = 2
	versionThree byte = 3

	currentVersion = versionThree
)

// Compact field tags. The tag carries both the field and its width.
// Wire format: never renumber.
const (
	tagObjectUUID   byte = 1 // 16 bytes
	tagRowID8       byte = 2
	tagRowID16      byte = 3
	tagSpanID8      byte = 4
	tagSpanID16     byte = 5
	tagRootSpanID8  byte = 6
	tagRootSpanID16 byte = 7
)

// tokenBlob is the trailing JSON section. Field names are wire format.
type tokenBlob struct {
	ObjectID                  string         `json:"object_id,omitempty"`
	RowID                     string         `json:"row_id,omitempty"`
	SpanID                    string         `json:"span_id,omitempty"`
	RootSpanID                string         `json:"root_span_id,omitempty"`
	ComputeObjectMetadataArgs map[string]any `json:"compute_object_metadata_args,omitempty"`
	Propagated                map[string]any `json:"propagated,omitempty"`
}

func (b tokenBlob) empty() bool {
	return b.ObjectID == "" && b.RowID == "" && b.SpanID == "" && b.RootSpanID == "" &&
		len(b.ComputeObjectMetadataArgs) == 0 && len(b.Propagated) == 0
}

// Encode serializes the identity into an opaque URL-safe token. Encoding
// always targets the current version.
func Encode(id SpanIdentity) (string, error) {
	if err := id.Validate(); err != nil {
		return "", errors.Wrap(err, "cannot encode span identity")
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, currentVersion, byte(id.ObjectType))

	var compact []byte
	var count byte
	blob := tokenBlob{
		ComputeObjectMetadataArgs: id.ComputeObjectMetadataArgs,
		Propagated:                id.Propagated,
	}

	if id.ObjectID != "" {
		if u, err := uuid.Parse(id.ObjectID); err == nil && u.String() == id.ObjectID {
			compact = append(compact, tagObjectUUID)
			compact = append(compact, u[:]...)
			count++
		} else {
			blob.ObjectID = id.ObjectID
		}
	}
	packID := func(s string, tag8, tag16 byte, spill *string) {
		if s == "" {
			return
		}
		if x, ok := parseHexID8(s); ok {
			compact = append(compact, tag8)
			compact = append(compact, x[:]...)
			count++
			return
		}
		if x, ok := parseHexID16(s); ok {
			compact = append(compact, tag16)
			compact = append(compact, x[:]...)
			count++
			return
		}
		*spill = s
	}
	packID(id.RowID, tagRowID8, tagRowID16, &blob.RowID)
	packID(id.SpanID, tagSpanID8, tagSpanID16, &blob.SpanID)
	packID(id.RootSpanID, tagRootSpanID8, tagRootSpanID16, &blob.RootSpanID)

	buf = append(buf, count)
	buf = append(buf, compact...)
	if !blob.empty() {
		encoded, err := json.Marshal(blob)
		if err != nil {
			return "", errors.Wrap(err, "cannot encode span identity blob")
		}
		buf = append(buf, encoded...)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type versionDecoder func(raw []byte) (SpanIdentity, error)

// Decoders are tried by the version tag in the token's first byte. Every
// released version stays here forever: a token minted by version N must
// decode under any decoder of version ≥ N.
var versionDecoders = map[byte]versionDecoder{
	versionOne:   decodeVersionOne,
	versionTwo:   decodeVersionTwo,
	versionThree: decodeVersionThree,
}

// Decode parses a token produced by this or any earlier SDK version.
// Failures wrap ErrMalformedToken; Decode never panics on bad input.
func Decode(token string) (SpanIdentity, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// tolerate padded tokens from base64 encoders that keep the '='
		raw, err = base64.URLEncoding.DecodeString(token)
	}
	if err != nil {
		return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "base64: %s", err)
	}
	if len(raw) < 2 {
		return SpanIdentity{}, errors.Wrap(ErrMalformedToken, "token too short")
	}
	decode, ok := versionDecoders[raw[0]]
	if !ok {
		return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "unknown version %d", raw[0])
	}
	id, err := decode(raw)
	if err != nil {
		return SpanIdentity{}, err
	}
	if err := id.Validate(); err != nil {
		return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "%s", err)
	}
	return id, nil
}

func decodeVersionThree(raw []byte) (SpanIdentity, error) {
	if len(raw) < 3 {
		return SpanIdentity{}, errors.Wrap(ErrMalformedToken, "token too short")
	}
	id := SpanIdentity{ObjectType: ObjectType(raw[1])}
	count := int(raw[2])
	rest := raw[3:]
	for i := 0; i < count; i++ {
		if len(rest) < 1 {
			return SpanIdentity{}, errors.Wrap(ErrMalformedToken, "truncated compact field")
		}
		tag := rest[0]
		rest = rest[1:]
		width := 8
		switch tag {
		case tagObjectUUID, tagRowID16, tagSpanID16, tagRootSpanID16:
			width = 16
		case tagRowID8, tagSpanID8, tagRootSpanID8:
		default:
			return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "unknown field tag %d", tag)
		}
		if len(rest) < width {
			return SpanIdentity{}, errors.Wrap(ErrMalformedToken, "truncated compact field")
		}
		value := rest[:width]
		rest = rest[width:]
		switch tag {
		case tagObjectUUID:
			u, err := uuid.FromBytes(value)
			if err != nil {
				return SpanIdentity{}, errors.Wrapf(ErrMalformedToken, "object id: %s", err)
			}
			id.ObjectID = u.String()
		case tagRowID8, tagRowID16:
			id.RowID = hexString(value)
		case tagSpanID8, tagSpanID16:
			id.SpanID = hexString(value)
		case tagRootSpanID8, tagRootSpanID16:
			id.RootSpanID = hexString(value)
		}
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

func hexString(b []byte) string {
	if len(b) == 8 {
		var x hexID8
		copy(x[:], b)
		return x.String()
	}
	var x hexID16
	copy(x[:], b)
	return x.String()
}

// applyBlob fills identity fields from the JSON section without clobbering
// anything the compact section already set.
func applyBlob(id *SpanIdentity, blob tokenBlob) {
	if id.ObjectID == "" {
		id.ObjectID = blob.ObjectID
	}
	if id.RowID == "" {
		id.RowID = blob.RowID
	}
	if id.SpanID == "" {
		id.SpanID = blob.SpanID
	}
	if id.RootSpanID == "" {
		id.RootSpanID = blob.RootSpanID
	}
	id.ComputeObjectMetadataArgs = blob.ComputeObjectMetadataArgs
	id.Propagated = blob.Propagated
}
