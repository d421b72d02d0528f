package ingest

import "hash/fnv"

// SyntheticRepoID derives a deterministic, non-negative int32-range repo id
// for sources with no native code-host id (URL ingestion), from
// "owner/name". FNV-1a keeps the id stable across processes, which
// GetOrCreateRepo's lookup-by-id depends on.
func SyntheticRepoID(owner, name string) int64 {
	h := fnv.New32a()
	h.Write([]byte(owner))
	h.Write([]byte("/"))
	h.Write([]byte(name))
	return int64(h.Sum32() & 0x7fffffff)
}
