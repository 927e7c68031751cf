package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceTrackerOrdering(t *testing.T) {
	p := NewPresenceTracker()

	assert.Equal(t, []string{"alice"}, p.RecordActivity("m1", "alice", "s1"))
	assert.Equal(t, []string{"alice", "bob"}, p.RecordActivity("m1", "bob", "s2"))
	assert.Equal(t, []string{"alice", "bob", "carol"}, p.RecordActivity("m1", "carol", "s3"))

	// lists are always ordered by join time
	assert.Equal(t, []string{"alice", "bob", "carol"}, p.Participants("m1"))
}

func TestPresenceTrackerReconnectReplacesInPlace(t *testing.T) {
	p := NewPresenceTracker()

	p.RecordActivity("m1", "alice", "s1")
	p.RecordActivity("m1", "bob", "s2")

	// alice reconnects on a new session: no duplicate, position kept
	members := p.RecordActivity("m1", "alice", "s9")
	assert.Equal(t, []string{"alice", "bob"}, members)

	// old session no longer owns alice's entry
	affected := p.RemoveSession("s1")
	assert.Empty(t, affected)
	assert.Equal(t, []string{"alice", "bob"}, p.Participants("m1"))

	// the new session does
	affected = p.RemoveSession("s9")
	require.Contains(t, affected, "m1")
	assert.Equal(t, []string{"bob"}, affected["m1"])
}

func TestPresenceTrackerRemoveActivity(t *testing.T) {
	p := NewPresenceTracker()

	p.RecordActivity("m1", "alice", "s1")
	p.RecordActivity("m1", "bob", "s2")

	assert.Equal(t, []string{"alice"}, p.RemoveActivity("m1", "bob"))

	// removing an absent user is a no-op
	assert.Equal(t, []string{"alice"}, p.RemoveActivity("m1", "ghost"))

	// last removal empties the meeting entirely
	assert.Equal(t, []string{}, p.RemoveActivity("m1", "alice"))
	assert.Empty(t, p.Meetings())
}

func TestPresenceTrackerRemoveSessionAcrossMeetings(t *testing.T) {
	p := NewPresenceTracker()

	p.RecordActivity("m1", "alice", "s1")
	p.RecordActivity("m1", "bob", "s2")
	p.RecordActivity("m2", "alice", "s1")

	affected := p.RemoveSession("s1")
	require.Len(t, affected, 2)
	assert.Equal(t, []string{"bob"}, affected["m1"])
	assert.Equal(t, []string{}, affected["m2"])

	// m2 is gone entirely, m1 keeps bob
	assert.Equal(t, []string{"m1"}, p.Meetings())
}

func TestPresenceTrackerParticipantsUnknownMeeting(t *testing.T) {
	p := NewPresenceTracker()
	assert.Equal(t, []string{}, p.Participants("nope"))
}
