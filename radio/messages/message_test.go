package messages

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope(t *testing.T) *Envelope {
	t.Helper()
	return NewEnvelope(
		"QmaCRFkbVhCu4cTFXBaauLPtBV4A9MeuWcGzHR4q5WSsjU",
		"mainnet",
		100,
		"0x4dbba1ba9fb18b0bd419cd4b655a8c2ee018bc8b",
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		1677000000,
	)
}

func TestEnvelope_SignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	env := testEnvelope(t)
	require.NoError(t, env.Sign(key))
	require.Len(t, env.Signature, 65)

	signer, err := env.RecoverSigner()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestEnvelope_TamperChangesSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	env := testEnvelope(t)
	require.NoError(t, env.Sign(key))

	env.Payload.NPOI = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	signer, err := env.RecoverSigner()
	if err == nil {
		assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), signer)
	}
}

func TestEnvelope_RecoverWithoutSignature(t *testing.T) {
	env := testEnvelope(t)
	_, err := env.RecoverSigner()
	require.Error(t, err)
}

func TestEnvelope_EncodeDecodeRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	env := testEnvelope(t)
	require.NoError(t, env.Sign(key))

	data, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env, decoded)

	// The decoded envelope still recovers to the same signer.
	signer, err := decoded.RecoverSigner()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13, 0x37})
	require.Error(t, err)
}

func TestEnvelope_CheckPayload(t *testing.T) {
	env := testEnvelope(t)
	require.NoError(t, env.CheckPayload())

	env.Payload.Identifier = "QmSomethingElse"
	require.Error(t, env.CheckPayload())

	env = testEnvelope(t)
	env.Payload.NPOI = ""
	require.Error(t, env.CheckPayload())
}

func TestEnvelope_DigestDependsOnEveryField(t *testing.T) {
	base := testEnvelope(t)
	digest := base.SigningDigest()

	mutations := []func(e *Envelope){
		func(e *Envelope) { e.Identifier = "QmOther"; e.Payload.Identifier = "QmOther" },
		func(e *Envelope) { e.Nonce++ },
		func(e *Envelope) { e.Network = "goerli" },
		func(e *Envelope) { e.BlockNumber++ },
		func(e *Envelope) { e.BlockHash = "0xdead" },
		func(e *Envelope) { e.Payload.NPOI = "0xdead" },
	}
	for i, mutate := range mutations {
		env := testEnvelope(t)
		mutate(env)
		assert.NotEqual(t, digest, env.SigningDigest(), "mutation %d did not change the digest", i)
	}
}
