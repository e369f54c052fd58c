// Package passwd parses the colon-separated /etc/passwd record format
// described in spec §3 ("a SHA-256-backed password database"), grounded in
// original_source/passwd.c/passwd.h. Only lookup is implemented here —
// verifying a login's password against the stored SHA-256 hash is a
// user-space concern (passwd_cmd.c / login.c) outside this spec's
// boundary. xv6fs uses ByUID to put a username on its operation log
// lines; permission checks work on numeric uids and do not consult it.
package passwd

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/gamer07340/xv6go/kernel/kerr"
)

// Entry is one user record: username:passwordHash:uid:gid:homedir:shell.
type Entry struct {
	Username     string
	PasswordHash string
	UID, GID     uint32
	Homedir      string
	Shell        string
}

// Database is the parsed contents of /etc/passwd, indexed both ways for
// getpwnam/getpwuid-equivalent lookups.
type Database struct {
	byName map[string]Entry
	byUID  map[uint32]Entry
}

// Parse reads a full /etc/passwd file's bytes into a Database, skipping
// any line that doesn't carry at least username:password:uid:gid
// (parseline's "field >= 4" acceptance rule).
func Parse(data []byte) (*Database, error) {
	db := &Database{byName: make(map[string]Entry), byUID: make(map[uint32]Entry)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		uid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			continue
		}
		gid, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			continue
		}
		e := Entry{Username: fields[0], PasswordHash: fields[1], UID: uint32(uid), GID: uint32(gid)}
		if len(fields) > 4 {
			e.Homedir = fields[4]
		}
		if len(fields) > 5 {
			e.Shell = fields[5]
		}
		db.byName[e.Username] = e
		db.byUID[e.UID] = e
	}
	return db, sc.Err()
}

// ByName is getpwnam.
func (db *Database) ByName(username string) (Entry, error) {
	e, ok := db.byName[username]
	if !ok {
		return Entry{}, kerr.ErrNoEnt
	}
	return e, nil
}

// ByUID is getpwuid.
func (db *Database) ByUID(uid uint32) (Entry, error) {
	e, ok := db.byUID[uid]
	if !ok {
		return Entry{}, kerr.ErrNoEnt
	}
	return e, nil
}

// NextUID mirrors getnextuid: one past the highest uid in [1000, 60000),
// or 1000 when no uid lies in that range. Gaps below the highest uid are
// not reused.
func (db *Database) NextUID() uint32 {
	max := uint32(999)
	for uid := range db.byUID {
		if uid > max && uid < 60000 {
			max = uid
		}
	}
	return max + 1
}
