package fec

import (
	"sync"

	"github.com/klauspost/reedsolomon"
)

// codecCache avoids re-deriving a Vandermonde matrix on every group: groups
// reuse a small set of (k, parity) shapes over a connection's lifetime.
var (
	codecMu    sync.Mutex
	codecCache = map[[2]int]reedsolomon.Encoder{}
)

func getCodec(dataShards, parityShards int) (reedsolomon.Encoder, error) {
	key := [2]int{dataShards, parityShards}
	codecMu.Lock()
	defer codecMu.Unlock()
	if c, ok := codecCache[key]; ok {
		return c, nil
	}
	c, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	codecCache[key] = c
	return c, nil
}

// encodeCoded produces numCoded parity shards over the k source shards.
// Source shards shorter than the group's shard width are zero-padded; the
// caller is responsible for remembering each shard's true length so it can
// be trimmed back out after decode.
func encodeCoded(sources [][]byte, numCoded int) ([][]byte, error) {
	k := len(sources)
	shardLen := 0
	for _, s := range sources {
		if len(s) > shardLen {
			shardLen = len(s)
		}
	}
	codec, err := getCodec(k, numCoded)
	if err != nil {
		return nil, err
	}
	shards := make([][]byte, k+numCoded)
	for i := 0; i < k; i++ {
		shards[i] = make([]byte, shardLen)
		copy(shards[i], sources[i])
	}
	for i := k; i < k+numCoded; i++ {
		shards[i] = make([]byte, shardLen)
	}
	if err := codec.Encode(shards); err != nil {
		return nil, err
	}
	return shards[k:], nil
}

// reconstructSources rebuilds any missing source shards given whatever
// source and coded shards were actually received. present[i] reports
// whether shards[i] holds real data; missing slots may be nil.
func reconstructSources(k, numCoded int, shards [][]byte, present []bool) error {
	codec, err := getCodec(k, numCoded)
	if err != nil {
		return err
	}
	full := make([][]byte, k+numCoded)
	copy(full, shards)
	for i, ok := range present {
		if !ok {
			full[i] = nil
		}
	}
	if err := codec.ReconstructData(full); err != nil {
		return err
	}
	copy(shards, full)
	return nil
}
