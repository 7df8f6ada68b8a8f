package secret

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"
)

// Redacted is what a Buffer prints in place of its contents.
const Redacted = "[REDACTED]"

var ErrDestroyed = errors.New("secret buffer destroyed")

// Buffer owns one secret value. The zero value is an empty, live buffer.
//
// A Buffer must not be copied after first use.
type Buffer struct {
	mu        sync.Mutex
	lb        *memguard.LockedBuffer
	destroyed bool
}

// New moves src into guarded memory. src is wiped before New returns,
// so the caller keeps no plaintext copy. An empty src yields an empty buffer.
func New(src []byte) *Buffer {
	b := &Buffer{}
	if len(src) > 0 {
		b.lb = memguard.NewBufferFromBytes(src)
	}
	Wipe(src)
	return b
}

// Bytes returns a read-only view of the secret. The view is only valid until
// Destroy; callers must not retain it or write to it. Returns nil once destroyed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed || b.lb == nil {
		return nil
	}
	return b.lb.Bytes()
}

// Len returns the secret length in bytes, or 0 once destroyed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed || b.lb == nil {
		return 0
	}
	return b.lb.Size()
}

// Use calls fn with a view of the secret while holding the buffer lock, so a
// concurrent Destroy waits for fn to return.
func (b *Buffer) Use(fn func([]byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return ErrDestroyed
	}
	var view []byte
	if b.lb != nil {
		view = b.lb.Bytes()
	}
	return fn(view)
}

// Destroy wipes and releases the guarded memory.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	if b.lb != nil {
		b.lb.Destroy()
		b.lb = nil
	}
	b.destroyed = true
}

// IsDestroyed reports whether Destroy has run.
func (b *Buffer) IsDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

func (b *Buffer) String() string   { return Redacted }
func (b *Buffer) GoString() string { return "secret.Buffer{" + Redacted + "}" }

// Format keeps %v, %s, %x, %q and friends from reaching the contents.
func (b *Buffer) Format(f fmt.State, _ rune) {
	fmt.Fprint(f, Redacted)
}

func (b *Buffer) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

func (b *Buffer) MarshalZerologObject(e *zerolog.Event) {
	e.Str("value", Redacted)
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}

// WipeAll zeroes every slice given.
func WipeAll(bs ...[]byte) {
	for _, b := range bs {
		Wipe(b)
	}
}
