package irc

import (
	"sort"
	"strings"
	"sync"
)

// Privilege is a channel membership flag.
type Privilege uint8

// Channel privileges tracked for authorization.
const (
	Operator Privilege = 1 << iota
	Voice
)

// User is a channel member. Users are identified by name alone.
type User struct {
	Name       string
	Privileges Privilege
}

// Has reports whether u holds p.
func (u User) Has(p Privilege) bool {
	return u.Privileges&p != 0
}

// Equal compares users by name only.
func (u User) Equal(other User) bool {
	return u.Name == other.Name
}

// userFromName parses a RPL_NAMREPLY entry such as "@alice" or "+bob".
// Prefixes other than @ and + are stripped without granting anything.
func userFromName(entry string) User {
	u := User{}
	for len(entry) > 0 && strings.ContainsRune("~&@%+", rune(entry[0])) {
		switch entry[0] {
		case '@':
			u.Privileges |= Operator
		case '+':
			u.Privileges |= Voice
		}
		entry = entry[1:]
	}
	u.Name = entry
	return u
}

// modePrivilege maps a channel mode letter to the privilege it toggles.
func modePrivilege(letter byte) (Privilege, bool) {
	switch letter {
	case 'o':
		return Operator, true
	case 'v':
		return Voice, true
	default:
		return 0, false
	}
}

// Roster mirrors membership of the configured channels the bot has joined.
// It is eventually consistent with the server and safe for concurrent use.
type Roster struct {
	mu         sync.RWMutex
	configured map[string]struct{}
	joined     map[string]map[string]User
	names      map[string]map[string]User
}

// NewRoster tracks the given channels. Events for other channels are ignored.
func NewRoster(channels []string) *Roster {
	configured := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		configured[channelKey(c)] = struct{}{}
	}
	return &Roster{
		configured: configured,
		joined:     make(map[string]map[string]User),
		names:      make(map[string]map[string]User),
	}
}

func channelKey(channel string) string {
	return strings.ToLower(channel)
}

// Configured reports whether channel is one the bot should be in.
func (r *Roster) Configured(channel string) bool {
	_, ok := r.configured[channelKey(channel)]
	return ok
}

// Joined reports whether the bot is currently in the configured channel.
func (r *Roster) Joined(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.joined[channelKey(channel)]
	return ok
}

// Lookup returns the live record for nick, or a privilege-less user.
func (r *Roster) Lookup(channel, nick string) User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.joined[channelKey(channel)][nick]; ok {
		return u
	}
	return User{Name: nick}
}

// Members returns the channel members sorted by name.
func (r *Roster) Members(channel string) []User {
	r.mu.RLock()
	out := make([]User, 0, len(r.joined[channelKey(channel)]))
	for _, u := range r.joined[channelKey(channel)] {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// JoinSelf records that the bot entered channel.
func (r *Roster) JoinSelf(channel string) {
	if !r.Configured(channel) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channelKey(channel)
	if _, ok := r.joined[key]; !ok {
		r.joined[key] = make(map[string]User)
	}
}

// LeaveSelf drops all state of channel after the bot parted or was kicked.
func (r *Roster) LeaveSelf(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.joined, channelKey(channel))
	delete(r.names, channelKey(channel))
}

// Join adds nick without privileges.
func (r *Roster) Join(channel, nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.joined[channelKey(channel)]; ok {
		members[nick] = User{Name: nick}
	}
}

// Part removes nick. Absent users are ignored.
func (r *Roster) Part(channel, nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.joined[channelKey(channel)], nick)
}

// Quit removes nick from every channel.
func (r *Roster) Quit(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, members := range r.joined {
		delete(members, nick)
	}
}

// Rename moves the record of from to to in every channel, keeping privileges.
func (r *Roster) Rename(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, members := range r.joined {
		if u, ok := members[from]; ok {
			delete(members, from)
			u.Name = to
			members[to] = u
		}
	}
}

// AddNames accumulates one RPL_NAMREPLY line for channel.
func (r *Roster) AddNames(channel string, entries []string) {
	if !r.Configured(channel) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channelKey(channel)
	pending, ok := r.names[key]
	if !ok {
		pending = make(map[string]User)
		r.names[key] = pending
	}
	for _, entry := range entries {
		if u := userFromName(entry); u.Name != "" {
			pending[u.Name] = u
		}
	}
}

// EndNames replaces the membership of a joined channel with the accumulated
// snapshot.
func (r *Roster) EndNames(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := channelKey(channel)
	pending := r.names[key]
	delete(r.names, key)
	if _, ok := r.joined[key]; !ok {
		return
	}
	if pending == nil {
		pending = make(map[string]User)
	}
	r.joined[key] = pending
}

// ApplyMode applies a mode string such as "+o-v" to args positionally. Each
// mode letter consumes one argument; unknown letters and absent users are
// ignored.
func (r *Roster) ApplyMode(channel, modes string, args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.joined[channelKey(channel)]
	if !ok {
		return
	}
	adding := true
	i := 0
	for k := 0; k < len(modes); k++ {
		switch modes[k] {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}
		if i >= len(args) {
			return
		}
		nick := args[i]
		i++
		priv, known := modePrivilege(modes[k])
		if !known {
			continue
		}
		u, present := members[nick]
		if !present {
			continue
		}
		if adding {
			u.Privileges |= priv
		} else {
			u.Privileges &^= priv
		}
		members[nick] = u
	}
}

// Clear forgets all membership, e.g. after a disconnect.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = make(map[string]map[string]User)
	r.names = make(map[string]map[string]User)
}
