package state

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
)

func TestPersistedState_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	st := NewPersistedState()
	require.NoError(t, st.Local.SaveLocal(attestation.Attestation{NPOI: "0xaa", StakeWeight: 10}, "Qmaaa", 100))
	require.NoError(t, st.Remote.Add(msg(1, "Qmaaa", 100, 5, "0xbb")))
	require.NoError(t, st.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, st.Local.Flatten(), loaded.Local.Flatten())
	require.Equal(t, 1, loaded.Remote.Len())
	assert.Equal(t, st.Remote.All()[0].Envelope, loaded.Remote.All()[0].Envelope)

	// Nonce watermarks survive the round trip: a replay is still rejected.
	err = loaded.Remote.Add(msg(1, "Qmaaa", 110, 4, "0xbb"))
	require.Error(t, err)
}

func TestLoad_MissingFileImpliesEmpty(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, st.Local.Flatten())
	assert.Equal(t, 0, st.Remote.Len())
}

func TestLoad_UnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	doc := `{"local_attestations":{"Qmaaa":{"100":{"npoi":"0xaa","stake_weight":3,"senders":null}}},"remote_messages":[],"some_future_field":42}`
	require.NoError(t, ioutil.WriteFile(path, []byte(doc), 0600))

	st, err := Load(path)
	require.NoError(t, err)
	att, ok := st.Local.GetLocal("Qmaaa", 100)
	require.True(t, ok)
	assert.Equal(t, "0xaa", att.NPOI)
}

func TestLoad_CorruptFileFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, ioutil.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)
	require.Error(t, err)
}
