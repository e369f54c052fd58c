// Package perm implements spec §4.13's permission check: Unix-style
// uid/gid/mode enforcement on inode operations, with uid 0 bypassing every
// check.
package perm

import "github.com/gamer07340/xv6go/kernel/kerr"

// Access is the requested operation class.
type Access int

const (
	Read Access = 1 << iota
	Write
	Exec
)

// bit positions within a standard rwxrwxrwx mode word.
const (
	ownerShift = 6
	groupShift = 3
	otherShift = 0
)

func (a Access) bit() uint32 {
	switch {
	case a&Read != 0:
		return 0o4
	case a&Write != 0:
		return 0o2
	default:
		return 0o1
	}
}

// Check enforces spec's selection rule: owner class if uid matches, group
// class if gid matches, other otherwise; uid 0 always passes.
func Check(callerUID, callerGID uint32, mode uint32, ownerUID, ownerGID uint32, needed Access) error {
	if callerUID == 0 {
		return nil
	}

	var shift uint32
	switch {
	case callerUID == ownerUID:
		shift = ownerShift
	case callerGID == ownerGID:
		shift = groupShift
	default:
		shift = otherShift
	}

	want := needed.bit()
	if (mode>>shift)&want != want {
		return kerr.ErrPerm
	}
	return nil
}

// CheckAll is a convenience for a request that needs more than one right at
// once (e.g. O_RDWR), folding Read|Write|Exec flags into one Check call.
func CheckAll(callerUID, callerGID uint32, mode uint32, ownerUID, ownerGID uint32, needed ...Access) error {
	for _, a := range needed {
		if err := Check(callerUID, callerGID, mode, ownerUID, ownerGID, a); err != nil {
			return err
		}
	}
	return nil
}
