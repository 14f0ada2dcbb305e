package update_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fwupdate/cycloneboot/pkg/image"
	"github.com/fwupdate/cycloneboot/pkg/slot"
	"github.com/fwupdate/cycloneboot/pkg/update"
	"github.com/fwupdate/cycloneboot/pkg/verify"
)

// TestSession_ArmSwapTwiceIsIdempotent covers the invariant
// armSwap(); armSwap() ≡ armSwap() at the session level (the
// ping-pong-level equivalent lives in pkg/slot's manager_test.go).
func TestSession_ArmSwapTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	manager := newTestManager(t)
	s := update.NewSession(manager, verify.TrustAnchors{}, image.Version{1, 0, 0})

	require.NoError(t, s.BeginUpdate(slot.SlotA))

	data := buildTestImage(t, image.Version{1, 0, 1})
	_, err := s.FeedBytes(data)
	require.NoError(t, err)
	require.NoError(t, s.FinishUpdate())
	require.Equal(t, update.StateVerified, s.State())

	require.NoError(t, s.ArmSwap())
	require.Equal(t, update.StateSwapArmed, s.State())

	require.NoError(t, s.ArmSwap())
	require.Equal(t, update.StateSwapArmed, s.State())

	rec, err := manager.State(slot.SlotA)
	require.NoError(t, err)
	require.Equal(t, slot.StatusActive, rec.Status)
}
