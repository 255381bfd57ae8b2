package dedup

import (
	"net/url"
	"strings"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// HostOf returns the hostname of link without a leading "www.", or link
// itself when it does not parse as an absolute URL.
func HostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return link
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// HostSet is a concurrency-safe set of hostnames.
type HostSet struct {
	mu    sync.Mutex
	hosts map[string]struct{}
}

// NewHostSet seeds a set with hosts.
func NewHostSet(hosts ...string) *HostSet {
	s := &HostSet{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		s.hosts[h] = struct{}{}
	}
	return s
}

// KnownHostsFromEntries builds the set of hosts already listed in entries.
func KnownHostsFromEntries(entries []store.Entry) *HostSet {
	s := NewHostSet()
	for _, e := range entries {
		s.hosts[HostOf(e.Link)] = struct{}{}
	}
	return s
}

// Seen adds host and reports whether it was already present.
func (s *HostSet) Seen(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[host]; ok {
		return true
	}
	s.hosts[host] = struct{}{}
	return false
}

// Contains reports membership without adding.
func (s *HostSet) Contains(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hosts[host]
	return ok
}

// Len returns the number of hosts in the set.
func (s *HostSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hosts)
}
