package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zentity-id/go-zentity-server/types"
)

// cborKey builds a COSE key map the way an authenticator encodes one:
// canonical shortest-form heads, integer labels, byte string values.
type cborKey struct {
	buf []byte
}

func (k *cborKey) head(major byte, arg int) {
	switch {
	case arg < 24:
		k.buf = append(k.buf, major<<5|byte(arg))
	case arg < 256:
		k.buf = append(k.buf, major<<5|24, byte(arg))
	default:
		k.buf = append(k.buf, major<<5|25, byte(arg>>8), byte(arg))
	}
}

func (k *cborKey) intVal(v int) {
	if v >= 0 {
		k.head(0, v)
	} else {
		k.head(1, -1-v)
	}
}

func (k *cborKey) bytesVal(b []byte) {
	k.head(2, len(b))
	k.buf = append(k.buf, b...)
}

func buildKeyMap(pairs ...func(*cborKey)) []byte {
	k := &cborKey{}
	k.head(5, len(pairs)/2)
	for _, p := range pairs {
		p(k)
	}
	return k.buf
}

func i(v int) func(*cborKey)     { return func(k *cborKey) { k.intVal(v) } }
func bs(b []byte) func(*cborKey) { return func(k *cborKey) { k.bytesVal(b) } }

func p256KeyBytes(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	x := priv.X.FillBytes(make([]byte, 32))
	y := priv.Y.FillBytes(make([]byte, 32))
	raw := buildKeyMap(
		i(labelKty), i(ktyEC2),
		i(labelAlg), i(AlgES256),
		i(labelCrv), i(crvP256),
		i(labelX), bs(x),
		i(labelY), bs(y),
	)
	return priv, raw
}

func TestDecodeES256Key(t *testing.T) {
	priv, raw := p256KeyBytes(t)

	pk, err := DecodePublicKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, KeyTypeECDSA, pk.Type)
	assert.Equal(t, AlgES256, pk.Alg)
	assert.Equal(t, crypto.SHA256, pk.Hash)
	assert.Equal(t, 32, pk.CoordSize)
	assert.Equal(t, priv.X.FillBytes(make([]byte, 32)), pk.X)
	assert.Equal(t, priv.Y.FillBytes(make([]byte, 32)), pk.Y)
}

func TestDecodeES384DefaultsAlg(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	raw := buildKeyMap(
		i(labelKty), i(ktyEC2),
		i(labelCrv), i(crvP384),
		i(labelX), bs(priv.X.FillBytes(make([]byte, 48))),
		i(labelY), bs(priv.Y.FillBytes(make([]byte, 48))),
	)

	pk, dErr := DecodePublicKey(raw)
	if dErr != nil {
		t.Fatal(dErr)
	}
	assert.Equal(t, AlgES384, pk.Alg)
	assert.Equal(t, crypto.SHA384, pk.Hash)
	assert.Equal(t, 48, pk.CoordSize)
}

func TestDecodeEd25519Key(t *testing.T) {
	ed := make([]byte, 32)
	rand.Read(ed)
	raw := buildKeyMap(
		i(labelKty), i(ktyOKP),
		i(labelAlg), i(AlgEdDSA),
		i(labelCrv), i(crvEd25519),
		i(labelX), bs(ed),
	)

	pk, err := DecodePublicKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, KeyTypeEdDSA, pk.Type)
	assert.Equal(t, ed, pk.EdKey)
}

func TestDecodeRS256Key(t *testing.T) {
	n := make([]byte, 256)
	rand.Read(n)
	raw := buildKeyMap(
		i(labelKty), i(ktyRSA),
		i(labelAlg), i(AlgRS256),
		i(labelCrv), bs(n), // label -1 carries the modulus for RSA keys
		i(labelX), bs([]byte{0x01, 0x00, 0x01}),
	)

	pk, err := DecodePublicKey(raw)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, KeyTypeRSA, pk.Type)
	assert.Equal(t, n, pk.N)
	assert.Equal(t, []byte{0x01, 0x00, 0x01}, pk.E)
}

func TestDecodeRejectsUnknownKeyType(t *testing.T) {
	raw := buildKeyMap(
		i(labelKty), i(4), // symmetric, never valid for assertions
	)
	_, err := DecodePublicKey(raw)
	assert.ErrorIs(t, err, types.ErrDecode)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	_, raw := p256KeyBytes(t)
	for _, cut := range []int{1, len(raw) / 2, len(raw) - 1} {
		_, err := DecodePublicKey(raw[:cut])
		assert.ErrorIs(t, err, types.ErrDecode, "cut at %d", cut)
	}
}

func TestDecodeRejectsMissingCoordinates(t *testing.T) {
	raw := buildKeyMap(
		i(labelKty), i(ktyEC2),
		i(labelCrv), i(crvP256),
	)
	_, err := DecodePublicKey(raw)
	assert.ErrorIs(t, err, types.ErrDecode)
}

func TestDecodeRejectsNotAMap(t *testing.T) {
	k := &cborKey{}
	k.bytesVal([]byte("not a map"))
	_, err := DecodePublicKey(k.buf)
	assert.ErrorIs(t, err, types.ErrDecode)
}
