package socket

import "github.com/gamer07340/xv6go/kernel/kerr"

// staticHosts is a fixed /etc/hosts-like table standing in for DNS
// resolution, which original_source/dns.c performs entirely in user space
// by sending a UDP query to a DNS server and parsing the answer section —
// functionality this kernel-side socket layer has no business doing. The
// socket layer's "resolve then connect" contract still needs a name,
// hence ResolveStatic.
var staticHosts = map[string]uint32{
	"localhost": 0x7f000001, // 127.0.0.1
}

// ResolveStatic looks up a hostname in the fixed static table, returning
// kerr.ErrNoEnt if it isn't present (there is no fallback DNS query, per
// spec's exclusion of anything beyond the syscall/device boundary).
func ResolveStatic(host string) (uint32, error) {
	ip, ok := staticHosts[host]
	if !ok {
		return 0, kerr.ErrNoEnt
	}
	return ip, nil
}

// AddStaticHost installs (or overrides) an /etc/hosts-style entry.
func AddStaticHost(host string, ip uint32) {
	staticHosts[host] = ip
}
