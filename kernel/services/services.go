// Package services parses a small /etc/services-style table (`name
// port/proto` per line) and resolves a service name to a port, the way
// original_source/dns.c hard-codes DNS's own port 53 lookup — generalized
// here into a small static table rather than one special case. No other
// package in this repository calls it yet; the socket layer takes numeric
// ports.
package services

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/gamer07340/xv6go/kernel/kerr"
)

// Proto is the transport a service entry applies to.
type Proto int

const (
	TCP Proto = iota
	UDP
)

type key struct {
	name  string
	proto Proto
}

// Table is a parsed /etc/services file.
type Table struct {
	byName map[key]uint16
}

// Parse reads lines shaped `name port/proto`, e.g. "domain 53/udp" or
// "http 80/tcp"; blank lines and lines starting with '#' are skipped.
func Parse(data []byte) (*Table, error) {
	t := &Table{byName: make(map[key]uint16)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		portProto := strings.SplitN(fields[1], "/", 2)
		if len(portProto) != 2 {
			continue
		}
		port, err := strconv.ParseUint(portProto[0], 10, 16)
		if err != nil {
			continue
		}
		var p Proto
		switch strings.ToLower(portProto[1]) {
		case "udp":
			p = UDP
		case "tcp":
			p = TCP
		default:
			continue
		}
		t.byName[key{fields[0], p}] = uint16(port)
	}
	return t, sc.Err()
}

// Lookup resolves a service name + protocol to its port.
func (t *Table) Lookup(name string, proto Proto) (uint16, error) {
	port, ok := t.byName[key{name, proto}]
	if !ok {
		return 0, kerr.ErrNoEnt
	}
	return port, nil
}

// DefaultTable is a small built-in fallback covering two well-known
// services: DNS (domain, 53/udp) and HTTP (http, 80/tcp).
var DefaultTable = &Table{byName: map[key]uint16{
	{"domain", UDP}: 53,
	{"http", TCP}:   80,
}}
