package files

type verdict int

const (
	undecided verdict = iota
	allow
	deny
)

// check is one step of the precedence chain
type check func(e *Entry, id Identity, d Defaults) verdict

// precedence is evaluated in order; the first decisive verdict wins.
var precedence = []check{
	entryDeny,
	entryAllow,
	globalDeny,
	globalOpen,
	globalAllow,
}

// IsAllowed reports whether the identity may access the entry
func IsAllowed(e *Entry, id Identity, d Defaults) bool {
	for _, c := range precedence {
		switch c(e, id, d) {
		case allow:
			return true
		case deny:
			return false
		}
	}
	return false
}

func entryDeny(e *Entry, id Identity, _ Defaults) verdict {
	if e.Permissions != nil && e.Permissions.Deny.Matches(id) {
		return deny
	}
	return undecided
}

// entryAllow treats a non-empty allow list as exclusive. Without one the
// global lists decide.
func entryAllow(e *Entry, id Identity, _ Defaults) verdict {
	if e.Permissions == nil || e.Permissions.Allow.Empty() {
		return undecided
	}
	if e.Permissions.Allow.Matches(id) {
		return allow
	}
	return deny
}

func globalDeny(_ *Entry, id Identity, d Defaults) verdict {
	if d.DenyUsers.Contains(id.UserID) || d.DenyGroups.Contains(id.GroupID) {
		return deny
	}
	return undecided
}

func globalOpen(_ *Entry, _ Identity, d Defaults) verdict {
	if len(d.AllowUsers) == 0 && len(d.AllowGroups) == 0 {
		return allow
	}
	return undecided
}

func globalAllow(_ *Entry, id Identity, d Defaults) verdict {
	if d.AllowUsers.Contains(id.UserID) || d.AllowGroups.Contains(id.GroupID) {
		return allow
	}
	return deny
}
