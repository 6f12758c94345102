package usecase

import (
	"bytes"
	"sync"
)

// chunkBuffer keeps captured audio chunks in arrival order.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func newChunkBuffer() *chunkBuffer {
	return &chunkBuffer{}
}

func (b *chunkBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, append([]byte(nil), chunk...))
	b.size += len(chunk)
}

// Bytes concatenates every chunk in the order it was appended.
func (b *chunkBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Blank reports whether the buffer holds no bytes other than whitespace.
// A whitespace rune may span two chunks.
func (b *chunkBuffer) Blank() bool {
	return len(bytes.TrimSpace(b.Bytes())) == 0
}

func (b *chunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
