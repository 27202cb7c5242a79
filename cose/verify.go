package cose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"math/big"
)

// SignatureDERToRaw converts an ASN.1 DER-encoded ECDSA signature into the
// fixed-width raw R‖S form. Each component is stripped of leading zero padding
// and left-padded to coordSize bytes.
func SignatureDERToRaw(der []byte, coordSize int) ([]byte, error) {
	c := &cursor{buf: der}
	b, err := c.byte()
	if err != nil {
		return nil, err
	}
	if b != 0x30 {
		return nil, decodeErr("ECDSA signature is not a DER sequence")
	}
	if _, err := derLength(c); err != nil {
		return nil, err
	}
	r, err := derInteger(c)
	if err != nil {
		return nil, err
	}
	s, err := derInteger(c)
	if err != nil {
		return nil, err
	}
	if len(r) > coordSize || len(s) > coordSize {
		return nil, decodeErr("ECDSA signature component longer than curve size")
	}
	raw := make([]byte, 2*coordSize)
	copy(raw[coordSize-len(r):coordSize], r)
	copy(raw[2*coordSize-len(s):], s)
	return raw, nil
}

func derLength(c *cursor) (int, error) {
	b, err := c.byte()
	if err != nil {
		return 0, err
	}
	if b < 0x80 {
		return int(b), nil
	}
	nbytes := int(b & 0x7f)
	if nbytes == 0 || nbytes > 2 {
		return 0, decodeErr("unsupported DER length encoding")
	}
	lb, err := c.take(nbytes)
	if err != nil {
		return 0, err
	}
	length := 0
	for _, v := range lb {
		length = length<<8 | int(v)
	}
	return length, nil
}

// derInteger reads one INTEGER and returns its value with leading zero bytes
// stripped.
func derInteger(c *cursor) ([]byte, error) {
	tag, err := c.byte()
	if err != nil {
		return nil, err
	}
	if tag != 0x02 {
		return nil, decodeErr("expected DER integer, got tag 0x%02x", tag)
	}
	length, err := derLength(c)
	if err != nil {
		return nil, err
	}
	v, err := c.take(length)
	if err != nil {
		return nil, err
	}
	for len(v) > 1 && v[0] == 0x00 {
		v = v[1:]
	}
	return v, nil
}

// Verify checks signature over data with the decoded key. A mismatch is a
// normal negative result (false, nil); only malformed input returns an error.
func Verify(pk *PublicKey, data, signature []byte) (bool, error) {
	switch pk.Type {
	case KeyTypeECDSA:
		return verifyECDSA(pk, data, signature)
	case KeyTypeRSA:
		return verifyRSA(pk, data, signature)
	case KeyTypeEdDSA:
		return ed25519.Verify(ed25519.PublicKey(pk.EdKey), data, signature), nil
	default:
		return false, decodeErr("unsupported key type %d", pk.Type)
	}
}

func verifyECDSA(pk *PublicKey, data, signature []byte) (bool, error) {
	raw, err := SignatureDERToRaw(signature, pk.CoordSize)
	if err != nil {
		return false, err
	}
	x := new(big.Int).SetBytes(pk.X)
	y := new(big.Int).SetBytes(pk.Y)
	if !pk.Curve.IsOnCurve(x, y) {
		return false, decodeErr("EC point is not on curve %s", pk.Curve.Params().Name)
	}
	pub := &ecdsa.PublicKey{Curve: pk.Curve, X: x, Y: y}
	h := pk.Hash.New()
	h.Write(data)
	r := new(big.Int).SetBytes(raw[:pk.CoordSize])
	s := new(big.Int).SetBytes(raw[pk.CoordSize:])
	return ecdsa.Verify(pub, h.Sum(nil), r, s), nil
}

func verifyRSA(pk *PublicKey, data, signature []byte) (bool, error) {
	e := new(big.Int).SetBytes(pk.E)
	if !e.IsInt64() || e.Int64() <= 1 {
		return false, decodeErr("malformed RSA exponent")
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(pk.N), E: int(e.Int64())}
	h := pk.Hash.New()
	h.Write(data)
	err := rsa.VerifyPKCS1v15(pub, pk.Hash, h.Sum(nil), signature)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, rsa.ErrVerification) {
		return false, nil
	}
	return false, err
}
