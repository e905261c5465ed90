package irc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserFromName(t *testing.T) {
	t.Parallel()

	require.Equal(t, User{Name: "alice", Privileges: Operator}, userFromName("@alice"))
	require.Equal(t, User{Name: "bob", Privileges: Voice}, userFromName("+bob"))
	require.Equal(t, User{Name: "carol", Privileges: Operator | Voice}, userFromName("@+carol"))
	require.Equal(t, User{Name: "dave"}, userFromName("%dave"))
	require.Equal(t, User{Name: "erin"}, userFromName("erin"))
	require.True(t, User{Name: "x", Privileges: Voice}.Equal(User{Name: "x"}), "equality by name only")
}

func TestRosterIgnoresUnconfiguredChannels(t *testing.T) {
	t.Parallel()

	r := NewRoster([]string{"#Archive"})
	r.JoinSelf("#other")
	require.False(t, r.Joined("#other"))

	r.JoinSelf("#archive")
	require.True(t, r.Joined("#ARCHIVE"), "channel names are case-insensitive")
	r.AddNames("#other", []string{"@mallory"})
	r.EndNames("#other")
	require.Equal(t, User{Name: "mallory"}, r.Lookup("#other", "mallory"))
}

func TestRosterNamesSnapshotReplaces(t *testing.T) {
	t.Parallel()

	r := NewRoster([]string{"#archive"})
	r.JoinSelf("#archive")
	r.Join("#archive", "stale")
	r.AddNames("#archive", []string{"@alice", "+bob"})
	require.Equal(t, User{Name: "stale"}, r.Lookup("#archive", "stale"), "snapshot only commits at end of names")
	r.EndNames("#archive")

	require.Len(t, r.Members("#archive"), 2)
	require.True(t, r.Lookup("#archive", "alice").Has(Operator))
}

func TestRosterApplyMode(t *testing.T) {
	t.Parallel()

	r := NewRoster([]string{"#archive"})
	r.JoinSelf("#archive")
	r.AddNames("#archive", []string{"alice", "@bob", "carol"})
	r.EndNames("#archive")

	r.ApplyMode("#archive", "+vk-o", []string{"alice", "secret", "bob"})
	require.True(t, r.Lookup("#archive", "alice").Has(Voice))
	require.False(t, r.Lookup("#archive", "bob").Has(Operator))

	r.ApplyMode("#archive", "+v", []string{"ghost"})
	require.Equal(t, User{Name: "ghost"}, r.Lookup("#archive", "ghost"), "absent users are not created")

	r.ApplyMode("#archive", "+ov", []string{"carol"})
	require.True(t, r.Lookup("#archive", "carol").Has(Operator))
	require.False(t, r.Lookup("#archive", "carol").Has(Voice), "letters without arguments are dropped")
}

func TestRosterRenameQuitClear(t *testing.T) {
	t.Parallel()

	r := NewRoster([]string{"#a", "#b"})
	r.JoinSelf("#a")
	r.JoinSelf("#b")
	r.AddNames("#a", []string{"+alice"})
	r.EndNames("#a")
	r.Join("#b", "alice")

	r.Rename("alice", "alicia")
	require.True(t, r.Lookup("#a", "alicia").Has(Voice))
	require.Equal(t, User{Name: "alice"}, r.Lookup("#a", "alice"))

	r.Quit("alicia")
	require.Empty(t, r.Members("#a"))
	require.Empty(t, r.Members("#b"))

	r.Part("#a", "nobody")
	r.Clear()
	require.False(t, r.Joined("#a"))
}
