// Package cache stores embedding vectors keyed by model and text so that
// re-ingesting a corpus does not pay for the same embedding twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store persists vectors by key
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
	Close() error
}

// Key derives the cache key for text embedded by model
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", model, hex.EncodeToString(sum[:]))
}

// encodeVector packs a vector as little-endian float32s
func encodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, val := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(val))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector: %d bytes", len(buf))
	}
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector, nil
}

// Memory is a process-local store
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]float32)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vector, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), vector...), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]float32(nil), vector...)
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Len reports how many vectors are cached
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
