package cose

import (
	"crypto"
	"crypto/elliptic"
	"fmt"

	"github.com/zentity-id/go-zentity-server/types"
)

// COSE key type values (RFC 9052 §7)
const (
	ktyOKP = 1
	ktyEC2 = 2
	ktyRSA = 3
)

// COSE key map labels
const (
	labelKty = 1
	labelAlg = 3
	labelCrv = -1 // also RSA modulus n
	labelX   = -2 // also RSA exponent e
	labelY   = -3
)

// COSE curve values
const (
	crvP256    = 1
	crvP384    = 2
	crvEd25519 = 6
)

// COSE algorithm identifiers
const (
	AlgES256 = -7
	AlgEdDSA = -8
	AlgES384 = -35
	AlgRS256 = -257
)

type KeyType int

const (
	KeyTypeECDSA KeyType = iota
	KeyTypeRSA
	KeyTypeEdDSA
)

// PublicKey is a normalized key descriptor decoded from a COSE key map. Only
// the fields matching Type are populated.
type PublicKey struct {
	Type KeyType
	Alg  int
	Hash crypto.Hash

	// ECDSA
	Curve     elliptic.Curve
	X, Y      []byte
	CoordSize int // raw signature component width in bytes

	// RSA
	N, E []byte

	// EdDSA
	EdKey []byte
}

// cursor walks the raw bytes. The format produced by authenticators uses
// canonical (shortest-form) encodings only, so the cursor handles immediate
// values, the 1-byte and the 2-byte length extensions and nothing else.
type cursor struct {
	buf []byte
	pos int
}

func decodeErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", types.ErrDecode, fmt.Sprintf(format, args...))
}

func (c *cursor) byte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, decodeErr("unexpected end of input at %d", c.pos)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, decodeErr("truncated value at %d (want %d bytes)", c.pos, n)
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// head reads one data item head, returning the major type and the argument
// (length or value depending on the major type).
func (c *cursor) head() (major byte, arg uint64, err error) {
	b, err := c.byte()
	if err != nil {
		return 0, 0, err
	}
	major = b >> 5
	info := b & 0x1f
	switch {
	case info < 24:
		arg = uint64(info)
	case info == 24:
		nb, err := c.byte()
		if err != nil {
			return 0, 0, err
		}
		arg = uint64(nb)
	case info == 25:
		nb, err := c.take(2)
		if err != nil {
			return 0, 0, err
		}
		arg = uint64(nb[0])<<8 | uint64(nb[1])
	default:
		return 0, 0, decodeErr("unsupported additional info %d", info)
	}
	return major, arg, nil
}

// intItem reads a signed integer item (major types 0 and 1).
func (c *cursor) intItem() (int64, error) {
	major, arg, err := c.head()
	if err != nil {
		return 0, err
	}
	switch major {
	case 0:
		return int64(arg), nil
	case 1:
		return -1 - int64(arg), nil
	default:
		return 0, decodeErr("expected integer, got major type %d", major)
	}
}

// value reads the next item as either int64, []byte or string. This is the
// entire value domain of a COSE key map.
func (c *cursor) value() (interface{}, error) {
	major, arg, err := c.head()
	if err != nil {
		return nil, err
	}
	switch major {
	case 0:
		return int64(arg), nil
	case 1:
		return -1 - int64(arg), nil
	case 2:
		b, err := c.take(int(arg))
		if err != nil {
			return nil, err
		}
		return b, nil
	case 3:
		b, err := c.take(int(arg))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, decodeErr("unsupported major type %d", major)
	}
}

// DecodePublicKey parses a single COSE key map into a normalized descriptor.
func DecodePublicKey(raw []byte) (*PublicKey, error) {
	c := &cursor{buf: raw}
	major, pairs, err := c.head()
	if err != nil {
		return nil, err
	}
	if major != 5 {
		return nil, decodeErr("expected map, got major type %d", major)
	}

	entries := make(map[int64]interface{}, pairs)
	for i := uint64(0); i < pairs; i++ {
		label, err := c.intItem()
		if err != nil {
			return nil, err
		}
		val, err := c.value()
		if err != nil {
			return nil, err
		}
		entries[label] = val
	}

	kty, ok := entries[labelKty].(int64)
	if !ok {
		return nil, decodeErr("missing key type")
	}
	alg, _ := entries[labelAlg].(int64)

	switch kty {
	case ktyEC2:
		return decodeEC2(entries, alg)
	case ktyRSA:
		return decodeRSA(entries, alg)
	case ktyOKP:
		return decodeOKP(entries, alg)
	default:
		return nil, decodeErr("unrecognized key type %d", kty)
	}
}

func decodeEC2(entries map[int64]interface{}, alg int64) (*PublicKey, error) {
	crv, _ := entries[labelCrv].(int64)
	x, xok := entries[labelX].([]byte)
	y, yok := entries[labelY].([]byte)
	if !xok || !yok {
		return nil, decodeErr("EC2 key missing coordinates")
	}
	pk := &PublicKey{Type: KeyTypeECDSA, Alg: int(alg), X: x, Y: y}
	switch crv {
	case crvP256:
		pk.Curve = elliptic.P256()
		pk.CoordSize = 32
		pk.Hash = crypto.SHA256
		if pk.Alg == 0 {
			pk.Alg = AlgES256
		}
	case crvP384:
		pk.Curve = elliptic.P384()
		pk.CoordSize = 48
		pk.Hash = crypto.SHA384
		if pk.Alg == 0 {
			pk.Alg = AlgES384
		}
	default:
		return nil, decodeErr("unsupported EC2 curve %d", crv)
	}
	return pk, nil
}

func decodeRSA(entries map[int64]interface{}, alg int64) (*PublicKey, error) {
	n, nok := entries[labelCrv].([]byte) // -1 carries the modulus for RSA keys
	e, eok := entries[labelX].([]byte)   // -2 carries the exponent
	if !nok || !eok {
		return nil, decodeErr("RSA key missing modulus or exponent")
	}
	if alg == 0 {
		alg = AlgRS256
	}
	if alg != AlgRS256 {
		return nil, decodeErr("unsupported RSA algorithm %d", alg)
	}
	return &PublicKey{Type: KeyTypeRSA, Alg: int(alg), Hash: crypto.SHA256, N: n, E: e}, nil
}

func decodeOKP(entries map[int64]interface{}, alg int64) (*PublicKey, error) {
	crv, _ := entries[labelCrv].(int64)
	if crv != crvEd25519 {
		return nil, decodeErr("unsupported OKP curve %d", crv)
	}
	if alg == 0 {
		alg = AlgEdDSA
	}
	if alg != AlgEdDSA {
		return nil, decodeErr("unsupported OKP algorithm %d", alg)
	}
	x, ok := entries[labelX].([]byte)
	if !ok || len(x) != 32 {
		return nil, decodeErr("OKP key missing or malformed public key bytes")
	}
	return &PublicKey{Type: KeyTypeEdDSA, Alg: int(alg), EdKey: x}, nil
}
