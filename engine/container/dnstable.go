package container

import (
	"hash/fnv"
	"runtime"
	"sync"
)

// shard is one bucket of the DNS table: an independent map protected by its
// own reader-writer lock, mirroring the source's HashBucket.
type shard struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// DNSTable maps an answer IPv4 address to the ordered list of hostnames
// that should resolve to it. It is sharded across a fixed number of
// buckets, chosen by hash(key) mod numShards, so that mutations to keys
// in different shards never contend on the same lock; keys that hash to
// the same shard share its lock.
type DNSTable struct {
	shards []*shard
}

// defaultShardCount mirrors the source's max(16, hardware parallelism).
func defaultShardCount() int {
	n := runtime.NumCPU()
	if n < 16 {
		return 16
	}
	return n
}

// NewDNSTable returns an empty table using the default shard count.
func NewDNSTable() *DNSTable {
	return NewDNSTableWithShards(defaultShardCount())
}

// NewDNSTableWithShards returns an empty table with an explicit shard
// count, mainly useful for tests that want to exercise sharding directly.
func NewDNSTableWithShards(numShards int) *DNSTable {
	if numShards < 1 {
		numShards = 1
	}
	t := &DNSTable{shards: make([]*shard, numShards)}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string][]string)}
	}
	return t
}

func (t *DNSTable) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return t.shards[int(h.Sum32())%len(t.shards)]
}

// ReplaceAll discards the current contents and installs the given mapping.
func (t *DNSTable) ReplaceAll(mapping map[string][]string) {
	for _, s := range t.shards {
		s.mu.Lock()
		s.entries = make(map[string][]string)
		s.mu.Unlock()
	}
	for ip, hosts := range mapping {
		cp := make([]string, len(hosts))
		copy(cp, hosts)
		s := t.shardFor(ip)
		s.mu.Lock()
		s.entries[ip] = cp
		s.mu.Unlock()
	}
}

// Insert appends hostName to ipAddress's hostname list, creating the list
// if absent. It is a no-op if hostName is already present under ipAddress,
// giving idempotent-insert semantics.
func (t *DNSTable) Insert(ipAddress, hostName string) {
	s := t.shardFor(ipAddress)
	s.mu.Lock()
	defer s.mu.Unlock()
	hosts := s.entries[ipAddress]
	for _, h := range hosts {
		if h == hostName {
			return
		}
	}
	s.entries[ipAddress] = append(hosts, hostName)
}

// Delete removes ipAddress and all of its hostnames from the table.
func (t *DNSTable) Delete(ipAddress string) {
	s := t.shardFor(ipAddress)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ipAddress)
}

// Hostnames returns a copy of the hostname list for ipAddress.
func (t *DNSTable) Hostnames(ipAddress string) ([]string, bool) {
	s := t.shardFor(ipAddress)
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts, ok := s.entries[ipAddress]
	if !ok {
		return nil, false
	}
	out := make([]string, len(hosts))
	copy(out, hosts)
	return out, true
}

// ForEach invokes fn once per (ipAddress, hostnames) entry. Each shard is
// copied under its own read lock and iterated outside that lock, so fn may
// safely call back into the table (e.g. Insert/Delete) without deadlocking.
func (t *DNSTable) ForEach(fn func(ipAddress string, hostNames []string)) {
	for _, s := range t.shards {
		s.mu.RLock()
		snapshot := make(map[string][]string, len(s.entries))
		for ip, hosts := range s.entries {
			cp := make([]string, len(hosts))
			copy(cp, hosts)
			snapshot[ip] = cp
		}
		s.mu.RUnlock()

		for ip, hosts := range snapshot {
			fn(ip, hosts)
		}
	}
}

// Len returns the total number of IP-address entries across all shards.
func (t *DNSTable) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
