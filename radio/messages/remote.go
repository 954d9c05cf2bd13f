package messages

import (
	"github.com/ethereum/go-ethereum/common"
)

// RemoteMessage is a gossip envelope that already passed ingestion
// validation, together with the recovered signer and the unix time the radio
// accepted it. The buffer of these records is what comparison windows run on.
type RemoteMessage struct {
	Envelope   *Envelope      `json:"envelope"`
	Signer     common.Address `json:"signer"`
	ReceivedAt int64          `json:"received_at"`
}
