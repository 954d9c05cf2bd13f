package attestation

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
)

// fakeResolver maps signers directly onto operators with fixed stakes.
type fakeResolver struct {
	stakes map[common.Address]uint64
	err    error
}

func (f *fakeResolver) IndexerOf(_ context.Context, signer common.Address) (common.Address, error) {
	if f.err != nil {
		return common.Address{}, f.err
	}
	return signer, nil
}

func (f *fakeResolver) StakeOf(_ context.Context, indexer common.Address) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.stakes[indexer], nil
}

func remoteMsg(signer common.Address, npoi string) *messages.RemoteMessage {
	return &messages.RemoteMessage{
		Envelope: &messages.Envelope{
			Identifier:  "Qmdeployment",
			BlockNumber: 100,
			Payload:     messages.RadioPayload{Identifier: "Qmdeployment", NPOI: npoi},
		},
		Signer: signer,
	}
}

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func TestProcessMessages_GroupsByNPOI(t *testing.T) {
	resolver := &fakeResolver{stakes: map[common.Address]uint64{
		addr(1): 10,
		addr(2): 20,
		addr(3): 5,
	}}
	msgs := []*messages.RemoteMessage{
		remoteMsg(addr(1), "0xaa"),
		remoteMsg(addr(2), "0xaa"),
		remoteMsg(addr(3), "0xbb"),
	}

	remote, err := ProcessMessages(context.Background(), msgs, resolver)
	require.NoError(t, err)
	require.Len(t, remote, 2)

	// Sorted by descending stake weight.
	assert.Equal(t, "0xaa", remote[0].NPOI)
	assert.Equal(t, uint64(30), remote[0].StakeWeight)
	assert.Len(t, remote[0].Senders, 2)
	assert.Equal(t, "0xbb", remote[1].NPOI)
	assert.Equal(t, uint64(5), remote[1].StakeWeight)
}

func TestProcessMessages_ZeroStakeCountsAsSender(t *testing.T) {
	resolver := &fakeResolver{stakes: map[common.Address]uint64{
		addr(1): 0,
	}}
	remote, err := ProcessMessages(context.Background(), []*messages.RemoteMessage{
		remoteMsg(addr(1), "0xaa"),
	}, resolver)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, uint64(0), remote[0].StakeWeight)
	assert.Len(t, remote[0].Senders, 1)
}

func TestProcessMessages_SameSignerCountedOnce(t *testing.T) {
	resolver := &fakeResolver{stakes: map[common.Address]uint64{addr(1): 10}}
	remote, err := ProcessMessages(context.Background(), []*messages.RemoteMessage{
		remoteMsg(addr(1), "0xaa"),
		remoteMsg(addr(1), "0xaa"),
	}, resolver)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, uint64(10), remote[0].StakeWeight)
	assert.Len(t, remote[0].Senders, 1)
}

func TestProcessMessages_EmptyInput(t *testing.T) {
	remote, err := ProcessMessages(context.Background(), nil, &fakeResolver{})
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func TestProcessMessages_OracleUnavailable(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("subgraph down")}
	_, err := ProcessMessages(context.Background(), []*messages.RemoteMessage{
		remoteMsg(addr(1), "0xaa"),
	}, resolver)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
}

func TestProcessMessages_Idempotent(t *testing.T) {
	resolver := &fakeResolver{stakes: map[common.Address]uint64{
		addr(1): 10,
		addr(2): 20,
	}}
	msgs := []*messages.RemoteMessage{
		remoteMsg(addr(1), "0xaa"),
		remoteMsg(addr(2), "0xbb"),
	}
	first, err := ProcessMessages(context.Background(), msgs, resolver)
	require.NoError(t, err)
	second, err := ProcessMessages(context.Background(), msgs, resolver)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSortByWeight_TieBreaksOnNPOI(t *testing.T) {
	atts := []Attestation{
		{NPOI: "0xbb", StakeWeight: 10},
		{NPOI: "0xaa", StakeWeight: 10},
		{NPOI: "0xcc", StakeWeight: 30},
	}
	SortByWeight(atts)
	assert.Equal(t, "0xcc", atts[0].NPOI)
	assert.Equal(t, "0xaa", atts[1].NPOI)
	assert.Equal(t, "0xbb", atts[2].NPOI)
}
