package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrKind
	}{
		{"nil is unknown", nil, KindUnknown},
		{"plain error is unknown", errors.New("boom"), KindUnknown},
		{"transient", Transientf("timeout"), KindTransient},
		{"permanent", Permanentf("bad auth"), KindPermanent},
		{"policy", Policyf("over limit"), KindPolicy},
		{"integrity", Integrityf("bad preamble"), KindIntegrity},
		{"fatal", Fatalf("vault missing"), KindFatal},
		{"wrapped keeps kind", fmt.Errorf("outer: %w", Transientf("inner")), KindTransient},
		{"double wrap keeps kind", fmt.Errorf("a: %w", fmt.Errorf("b: %w", Policyf("x"))), KindPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Transientf("timeout")))
	assert.True(t, Retryable(errors.New("unclassified")))
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(Permanentf("auth")))
	assert.False(t, Retryable(Policyf("limit")))
	assert.False(t, Retryable(Integrityf("collision")))
	assert.False(t, Retryable(Fatalf("root gone")))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Transient(nil))
	assert.NoError(t, Permanent(nil))
}

func TestStatusLater(t *testing.T) {
	assert.True(t, StatusApproved.Later(StatusPending))
	assert.True(t, StatusDone.Later(StatusApproved))
	assert.False(t, StatusPending.Later(StatusPending))
	assert.False(t, StatusPending.Later(StatusDone))
	// Both terminal states rank equal; neither overrides the other.
	assert.False(t, StatusDone.Later(StatusRejected))
	assert.False(t, StatusRejected.Later(StatusDone))
}

func TestPeerOther(t *testing.T) {
	assert.Equal(t, PeerCloud, PeerLocal.Other())
	assert.Equal(t, PeerLocal, PeerCloud.Other())
}

func TestPriorityValid(t *testing.T) {
	assert.True(t, PriorityP0.Valid())
	assert.True(t, PriorityP3.Valid())
	assert.False(t, Priority("P4").Valid())
	assert.False(t, Priority("").Valid())
}
