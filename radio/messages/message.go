// Package messages defines the signed gossip envelope exchanged between radio
// operators, its wire encoding, and the typed-data signing scheme.
package messages

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Typed-data domain shared by every radio operator. Any change to these
// values or to the field order below breaks cross-operator verification.
const (
	domainName    = "Graphcast POI Radio"
	domainVersion = "0"
	domainChainID = uint64(1)
)

var domainVerifyingContract = common.Address{}

var (
	eip712DomainTypeHash = crypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	radioPayloadTypeHash = crypto.Keccak256([]byte(
		"RadioPayloadMessage(string identifier,uint64 nonce,string network,uint64 blockNumber,string blockHash,string npoi)",
	))
)

// ErrMalformedPayload is returned when an envelope's nested payload does not
// agree with its own routing fields.
var ErrMalformedPayload = errors.New("envelope payload does not match envelope identifier")

// RadioPayload is the radio specific message content: the deployment under
// attestation and the normalized POI the sender produced for it.
type RadioPayload struct {
	Identifier string
	NPOI       string
}

// Envelope is the signed gossip frame. Nonce is the sender's unix timestamp
// at signing time and orders messages from one signer. Signature is a 65-byte
// recoverable secp256k1 signature over the typed digest of all other fields.
type Envelope struct {
	Identifier  string
	Nonce       uint64
	Network     string
	BlockNumber uint64
	BlockHash   string
	Payload     RadioPayload
	Signature   []byte
}

// NewEnvelope assembles an unsigned envelope for a deployment at a block.
func NewEnvelope(identifier, network string, blockNumber uint64, blockHash, npoi string, nonce uint64) *Envelope {
	return &Envelope{
		Identifier:  identifier,
		Nonce:       nonce,
		Network:     network,
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		Payload: RadioPayload{
			Identifier: identifier,
			NPOI:       npoi,
		},
	}
}

// CheckPayload verifies the structural invariant that the nested payload
// routes to the same deployment as the envelope itself.
func (e *Envelope) CheckPayload() error {
	if e.Payload.Identifier != e.Identifier {
		return ErrMalformedPayload
	}
	if e.Payload.NPOI == "" {
		return errors.Wrap(ErrMalformedPayload, "empty npoi")
	}
	return nil
}

// SigningDigest computes the EIP-712 style digest the signature covers.
func (e *Envelope) SigningDigest() []byte {
	domain := crypto.Keccak256(
		eip712DomainTypeHash,
		crypto.Keccak256([]byte(domainName)),
		crypto.Keccak256([]byte(domainVersion)),
		uint64Word(domainChainID),
		common.LeftPadBytes(domainVerifyingContract.Bytes(), 32),
	)
	structHash := crypto.Keccak256(
		radioPayloadTypeHash,
		crypto.Keccak256([]byte(e.Identifier)),
		uint64Word(e.Nonce),
		crypto.Keccak256([]byte(e.Network)),
		uint64Word(e.BlockNumber),
		crypto.Keccak256([]byte(e.BlockHash)),
		crypto.Keccak256([]byte(e.Payload.NPOI)),
	)
	return crypto.Keccak256([]byte("\x19\x01"), domain, structHash)
}

// Sign computes and attaches the 65-byte recoverable signature.
func (e *Envelope) Sign(key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(e.SigningDigest(), key)
	if err != nil {
		return errors.Wrap(err, "could not sign envelope digest")
	}
	e.Signature = sig
	return nil
}

// RecoverSigner returns the address whose key produced the envelope signature.
func (e *Envelope) RecoverSigner() (common.Address, error) {
	if len(e.Signature) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("signature has wrong length: %d", len(e.Signature))
	}
	pub, err := crypto.SigToPub(e.SigningDigest(), e.Signature)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "could not recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Encode serializes the envelope for the gossip wire.
func (e *Envelope) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(e)
}

// Decode parses a gossip frame back into an envelope.
func Decode(data []byte) (*Envelope, error) {
	e := new(Envelope)
	if err := rlp.DecodeBytes(data, e); err != nil {
		return nil, errors.Wrap(err, "could not decode envelope")
	}
	return e, nil
}

func uint64Word(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return common.LeftPadBytes(b, 32)
}
