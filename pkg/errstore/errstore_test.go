package errstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy() Policy {
	return Policy{
		Enabled:          true,
		Size:             16,
		Retention:        time.Minute,
		MaxErrors:        4,
		GenericAction:    ActionFault,
		TimeoutMaxErrors: 2,
		TimeoutAction:    ActionFault,
		Timeout:          time.Second,
	}
}

func TestStore_FaultsAfterThresholdExceeded(t *testing.T) {
	s := New(testPolicy())
	now := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		action := s.Record(KindGeneric, now)
		assert.Equal(t, ActionIgnore, action)
		now = now.Add(time.Second)
	}

	action := s.Record(KindGeneric, now)
	assert.Equal(t, ActionFault, action)
}

func TestStore_KindsAreIndependent(t *testing.T) {
	s := New(testPolicy())
	now := time.Unix(0, 0)

	assert.Equal(t, ActionIgnore, s.Record(KindGeneric, now))
	assert.Equal(t, ActionIgnore, s.Record(KindGeneric, now))
	assert.Equal(t, ActionIgnore, s.Record(KindGeneric, now))
	// Three generic errors, threshold is 4: no fault yet.
	assert.Equal(t, ActionIgnore, s.Record(KindTimeout, now))
	// One timeout so far, threshold is 2: no fault yet either.
	assert.Equal(t, ActionFault, s.Record(KindTimeout, now))
}

func TestStore_OldRecordsFallOutsideRetention(t *testing.T) {
	s := New(testPolicy())
	base := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		s.Record(KindGeneric, base)
	}
	// All three age out before the fourth arrives.
	action := s.Record(KindGeneric, base.Add(2*time.Minute))
	assert.Equal(t, ActionIgnore, action)
}

func TestStore_DisabledPolicyNeverFaults(t *testing.T) {
	p := testPolicy()
	p.Enabled = false
	s := New(p)
	now := time.Unix(0, 0)
	for i := 0; i < 20; i++ {
		assert.Equal(t, ActionIgnore, s.Record(KindGeneric, now))
	}
}

func TestStore_ResetClearsHistory(t *testing.T) {
	s := New(testPolicy())
	now := time.Unix(0, 0)
	s.Record(KindGeneric, now)
	s.Record(KindGeneric, now)
	s.Record(KindGeneric, now)
	s.Reset()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, ActionIgnore, s.Record(KindGeneric, now))
}

func TestStore_RingBufferEvictsOldest(t *testing.T) {
	p := testPolicy()
	p.Size = 2
	s := New(p)
	now := time.Unix(0, 0)
	s.Record(KindGeneric, now)
	s.Record(KindGeneric, now)
	s.Record(KindGeneric, now)
	assert.Equal(t, 2, s.Count())
}
