// Package secure holds backend credentials (API tokens, access keys) in
// memory protected by memguard: encrypted at rest, mlocked against swapping,
// and wiped on destruction. Backends that cache a long-lived credential
// between fetches keep it in a Buffer instead of a plain string so the
// plaintext never sits in ordinary heap memory or a core dump.
//
// Call memguard.Purge() at process exit for full cleanup of all buffers.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer is a protected container for one credential. Safe for concurrent
// use; idempotent Destroy.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewBuffer copies data into an encrypted enclave. The caller should zero
// its own copy afterwards. If mlock is unavailable memguard degrades to
// standard memory and the data is still encrypted at rest.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// NewBufferFromString copies a string credential into a protected buffer.
func NewBufferFromString(s string) *Buffer {
	return NewBuffer([]byte(s))
}

// Open decrypts the credential into a locked buffer. The caller must call
// Destroy on the returned LockedBuffer once done with the plaintext. A
// destroyed Buffer yields an empty LockedBuffer.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return b.enclave.Open()
}

// WithString decrypts the credential, passes it to fn, and wipes the
// plaintext when fn returns. The string must not escape fn.
func (b *Buffer) WithString(fn func(string) error) error {
	locked, err := b.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.String())
}

// Destroy prevents further use of the buffer. Idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.enclave = nil
}

// IsDestroyed reports whether Destroy has been called.
func (b *Buffer) IsDestroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}
