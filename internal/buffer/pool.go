// Package buffer pools the byte slices backing stream read and write
// buffers.
package buffer

import (
	"sync"
)

// BytePool hands out byte slices from size buckets so streams that are
// opened and closed repeatedly reuse their buffers.
type BytePool struct {
	pools map[int]*sync.Pool
	sizes []int
}

// NewBytePool creates a pool with buckets from 64KB to 32MB.
func NewBytePool() *BytePool {
	sizes := []int{
		65536,    // 64KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		8388608,  // 8MB
		16777216, // 16MB
		33554432, // 32MB
	}

	pools := make(map[int]*sync.Pool, len(sizes))
	for _, size := range sizes {
		size := size
		pools[size] = &sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		}
	}

	return &BytePool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a slice of length size. Sizes above the largest bucket are
// allocated directly.
func (p *BytePool) Get(size int) []byte {
	for _, bucketSize := range p.sizes {
		if bucketSize >= size {
			buf := p.pools[bucketSize].Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the bucket matching its capacity. The contents are
// zeroed so data read from one file never leaks into another stream.
func (p *BytePool) Put(buf []byte) {
	if buf == nil {
		return
	}
	pool, ok := p.pools[cap(buf)]
	if !ok {
		return
	}
	buf = buf[:cap(buf)]
	clear(buf)
	// nolint:staticcheck // SA6002: sync.Pool.Put requires interface{}
	pool.Put(buf)
}

// PoolStats describes the bucket layout.
type PoolStats struct {
	PoolSizes     []int `json:"pool_sizes"`
	TotalPools    int   `json:"total_pools"`
	MaxBufferSize int   `json:"max_buffer_size"`
	MinBufferSize int   `json:"min_buffer_size"`
}

// GetStats returns the bucket layout of the pool.
func (p *BytePool) GetStats() PoolStats {
	stats := PoolStats{
		PoolSizes:  append([]int(nil), p.sizes...),
		TotalPools: len(p.pools),
	}
	if len(p.sizes) > 0 {
		stats.MinBufferSize = p.sizes[0]
		stats.MaxBufferSize = p.sizes[len(p.sizes)-1]
	}
	return stats
}

var defaultBytePool = NewBytePool()

// Get takes a buffer from the shared pool.
func Get(size int) []byte {
	return defaultBytePool.Get(size)
}

// Put returns a buffer to the shared pool.
func Put(buf []byte) {
	defaultBytePool.Put(buf)
}
