package state

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/graphops/poi-crosschecker-radio/radio/attestation"
	"github.com/graphops/poi-crosschecker-radio/radio/messages"
	"github.com/graphops/poi-crosschecker-radio/shared/fileutil"
)

// PersistedState combines the local attestation store with the remote message
// buffer behind their independent locks, so the query surface can read one
// side without blocking writers on the other.
type PersistedState struct {
	Local  *attestation.Store
	Remote *RemoteMessages
}

// document is the on-disk shape. Unknown fields in an existing file are
// ignored on load.
type document struct {
	LocalAttestations map[string]map[uint64]attestation.Attestation `json:"local_attestations"`
	RemoteMessages    []*messages.RemoteMessage                     `json:"remote_messages"`
}

// NewPersistedState initializes empty state.
func NewPersistedState() *PersistedState {
	return &PersistedState{
		Local:  attestation.NewStore(),
		Remote: NewRemoteMessages(),
	}
}

// Load reads persisted state from path. A missing file implies empty state.
func Load(path string) (*PersistedState, error) {
	s := NewPersistedState()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Debug("No persisted state found, starting empty")
			return s, nil
		}
		return nil, errors.Wrap(err, "could not read persisted state")
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "could not parse persisted state")
	}
	s.Local.Restore(doc.LocalAttestations)
	s.Remote.Restore(doc.RemoteMessages)
	log.WithField("remoteMessages", s.Remote.Len()).Info("Loaded persisted state")
	return s, nil
}

// Save serializes the current state to path. Both sides are copied out under
// their locks first; the write itself happens with no lock held.
func (s *PersistedState) Save(path string) error {
	doc := document{
		LocalAttestations: s.Local.Snapshot(),
		RemoteMessages:    s.Remote.Snapshot(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize state")
	}
	return fileutil.WriteFile(path, data)
}

// Service flushes the persisted state on an interval and on shutdown.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	state    *PersistedState
	path     string
	interval time.Duration
}

// NewService creates the persistence service around already loaded state.
func NewService(ctx context.Context, st *PersistedState, path string, interval time.Duration) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		ctx:      ctx,
		cancel:   cancel,
		state:    st,
		path:     path,
		interval: interval,
	}
}

// Start begins the periodic flush loop.
func (s *Service) Start() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.state.Save(s.path); err != nil {
				log.WithError(err).Error("Could not flush radio state")
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop writes a final snapshot and ends the flush loop.
func (s *Service) Stop() error {
	s.cancel()
	if err := s.state.Save(s.path); err != nil {
		return errors.Wrap(err, "final state flush failed")
	}
	log.WithField("path", s.path).Info("Persisted radio state")
	return nil
}

// Status always reports healthy; persistence failures are logged, never fatal.
func (s *Service) Status() error {
	return nil
}
