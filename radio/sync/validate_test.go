package sync

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/radio/p2p"
	"github.com/graphops/poi-crosschecker-radio/radio/state"
)

const (
	mainnetDeployment = "QmMAINNET"
	goerliDeployment  = "QmGOERLI"
	canonicalHash     = "0x4dbba1ba9fb18b0bd419cd4b655a8c2ee018bc8b"
)

type fakeAgent struct{}

func (f *fakeAgent) RegisterHandler(_ pubsub.Validator, _ p2p.MessageHandler) {}
func (f *fakeAgent) PeerID() peer.ID                                          { return peer.ID("self") }

type fakeRegistry struct {
	indexers map[common.Address]common.Address
}

func (f *fakeRegistry) IndexerOf(_ context.Context, signer common.Address) (common.Address, error) {
	indexer, ok := f.indexers[signer]
	if !ok {
		return common.Address{}, errors.New("signer is not registered to an indexer")
	}
	return indexer, nil
}

type fakeNetwork struct {
	stakes map[common.Address]uint64
}

func (f *fakeNetwork) StakeOf(_ context.Context, indexer common.Address) (uint64, error) {
	return f.stakes[indexer], nil
}

type fakeGraphNode struct {
	hashes map[string]string // "network#block" -> hash
}

func (f *fakeGraphNode) BlockHash(_ context.Context, network string, blockNumber uint64) (string, error) {
	hash, ok := f.hashes[fmt.Sprintf("%s#%d", network, blockNumber)]
	if !ok {
		return "", errors.New("no such block")
	}
	return hash, nil
}

type testHarness struct {
	svc      *Service
	buffer   *state.RemoteMessages
	registry *fakeRegistry
	network  *fakeNetwork
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	buffer := state.NewRemoteMessages()
	registry := &fakeRegistry{indexers: map[common.Address]common.Address{}}
	network := &fakeNetwork{stakes: map[common.Address]uint64{}}
	graphNode := &fakeGraphNode{hashes: map[string]string{
		"mainnet#100": canonicalHash,
		"goerli#100":  canonicalHash,
	}}
	svc, err := NewService(context.Background(), &Config{
		Agent:     &fakeAgent{},
		Registry:  registry,
		Network:   network,
		GraphNode: graphNode,
		Buffer:    buffer,
	})
	require.NoError(t, err)
	return &testHarness{svc: svc, buffer: buffer, registry: registry, network: network}
}

// registerSigner makes a fresh key whose operator has the given stake.
func (h *testHarness) registerSigner(t *testing.T, stake uint64) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)
	h.registry.indexers[signer] = signer
	h.network.stakes[signer] = stake
	return key
}

func signedFrame(t *testing.T, key *ecdsa.PrivateKey, identifier, network string, nonce uint64, npoi string) []byte {
	t.Helper()
	env := messages.NewEnvelope(identifier, network, 100, canonicalHash, npoi, nonce)
	require.NoError(t, env.Sign(key))
	data, err := env.Encode()
	require.NoError(t, err)
	return data
}

func assertRejected(t *testing.T, err error, kind RejectionKind) {
	t.Helper()
	require.Error(t, err)
	var rerr *RejectionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, kind, rerr.Kind)
}

func TestValidateEnvelope_Accepts(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 10)
	data := signedFrame(t, key, mainnetDeployment, "mainnet", 5, "0xaa")

	record, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 1234)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), record.Signer)
	assert.Equal(t, int64(1234), record.ReceivedAt)
	assert.Equal(t, "0xaa", record.Envelope.Payload.NPOI)
}

func TestValidateEnvelope_GarbageFrame(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment, []byte{0xde, 0xad}, 0)
	assertRejected(t, err, RejectInvalid)
}

// A message for one deployment arriving on another deployment's topic is
// dropped before any oracle work.
func TestValidateEnvelope_WrongTopic(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 10)
	data := signedFrame(t, key, goerliDeployment, "goerli", 5, "0xaa")

	_, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 0)
	assertRejected(t, err, RejectInvalid)
}

func TestValidateEnvelope_BadSignature(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 10)
	env := messages.NewEnvelope(mainnetDeployment, "mainnet", 100, canonicalHash, "0xaa", 5)
	require.NoError(t, env.Sign(key))
	env.Signature = env.Signature[:32] // truncated
	data, err := env.Encode()
	require.NoError(t, err)

	_, err = h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 0)
	assertRejected(t, err, RejectUnauthenticated)
}

func TestValidateEnvelope_UnregisteredSigner(t *testing.T) {
	h := newHarness(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	data := signedFrame(t, key, mainnetDeployment, "mainnet", 5, "0xaa")

	_, err = h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 0)
	assertRejected(t, err, RejectUnregistered)
}

func TestValidateEnvelope_ZeroStake(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 0)
	data := signedFrame(t, key, mainnetDeployment, "mainnet", 5, "0xaa")

	_, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 0)
	assertRejected(t, err, RejectUnregistered)
}

func TestValidateEnvelope_BlockHashMismatch(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 10)
	env := messages.NewEnvelope(mainnetDeployment, "mainnet", 100, "0xwronghash", "0xaa", 5)
	require.NoError(t, env.Sign(key))
	data, err := env.Encode()
	require.NoError(t, err)

	_, err = h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 0)
	assertRejected(t, err, RejectInconsistent)
}

func TestValidateEnvelope_UnsupportedNetwork(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 10)
	data := signedFrame(t, key, mainnetDeployment, "made-up-chain", 5, "0xaa")

	_, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment, data, 0)
	assertRejected(t, err, RejectInconsistent)
}

// Replay: after accepting nonce 5 from a signer, nonce 4 from the same
// signer on the same identifier must be rejected as stale and only the first
// message stays buffered.
func TestValidateEnvelope_ReplayRejected(t *testing.T) {
	h := newHarness(t)
	key := h.registerSigner(t, 10)

	first, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment,
		signedFrame(t, key, mainnetDeployment, "mainnet", 5, "0xaa"), 10)
	require.NoError(t, err)
	require.NoError(t, h.buffer.Add(first))

	_, err = h.svc.validateEnvelope(context.Background(), mainnetDeployment,
		signedFrame(t, key, mainnetDeployment, "mainnet", 4, "0xaa"), 11)
	assertRejected(t, err, RejectStale)

	require.Equal(t, 1, h.buffer.Len())
	assert.Equal(t, uint64(5), h.buffer.All()[0].Envelope.Nonce)
}

// Topic filtering: with only the mainnet deployment subscribed, every
// buffered message carries the mainnet identifier no matter what peers send.
func TestIngestion_FiltersByTopic(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 5; i++ {
		key := h.registerSigner(t, 10)
		record, err := h.svc.validateEnvelope(context.Background(), mainnetDeployment,
			signedFrame(t, key, mainnetDeployment, "mainnet", uint64(i+1), "0xaa"), int64(i))
		require.NoError(t, err)
		require.NoError(t, h.buffer.Add(record))

		// The same operator also gossips for a goerli deployment; those
		// frames arrive on the subscribed topic and must be dropped.
		_, err = h.svc.validateEnvelope(context.Background(), mainnetDeployment,
			signedFrame(t, key, goerliDeployment, "goerli", uint64(i+1), "0xbb"), int64(i))
		require.Error(t, err)
	}

	msgs := h.buffer.All()
	require.GreaterOrEqual(t, len(msgs), 5)
	for _, m := range msgs {
		assert.Equal(t, mainnetDeployment, m.Envelope.Identifier)
	}
}

func TestIdentifierFromTopic(t *testing.T) {
	assert.Equal(t, "Qmaaa", identifierFromTopic("/graphcast/0/poi-radio/Qmaaa"))
	assert.Equal(t, "bare", identifierFromTopic("bare"))
}
