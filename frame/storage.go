package frame

import (
	"fmt"

	"go.uber.org/atomic"
)

// ReleaseFunc hands a hardware buffer back to its producer.
type ReleaseFunc func(buf []byte)

// Storage describes who owns the bytes of a frame. It is either
// *OwnedStorage or *ZeroCopyStorage.
type Storage interface {
	fmt.Stringer
	isStorage()
	free(data []byte)
}

// OwnedStorage is the storage of a frame whose data was allocated by the
// pipeline itself.
type OwnedStorage struct {
	// OnFree is called (if set) when the last reference is dropped.
	OnFree func(data []byte)
}

var _ Storage = (*OwnedStorage)(nil)

func (*OwnedStorage) isStorage() {}

func (*OwnedStorage) String() string {
	return "owned"
}

func (s *OwnedStorage) free(data []byte) {
	if s.OnFree != nil {
		s.OnFree(data)
	}
}

// ZeroCopyStorage is the storage of a frame that aliases a buffer lent by
// a hardware producer; the buffer is returned through Release.
type ZeroCopyStorage struct {
	Buffer  []byte
	Size    uint32
	Release ReleaseFunc

	returned atomic.Bool
}

var _ Storage = (*ZeroCopyStorage)(nil)

func (*ZeroCopyStorage) isStorage() {}

func (s *ZeroCopyStorage) String() string {
	return fmt.Sprintf("zero-copy(%d bytes)", s.Size)
}

// IsReturned returns true if the buffer was already handed back to the producer.
func (s *ZeroCopyStorage) IsReturned() bool {
	return s.returned.Load()
}

func (s *ZeroCopyStorage) free([]byte) {
	if !s.returned.CompareAndSwap(false, true) {
		return
	}
	if s.Release != nil {
		s.Release(s.Buffer)
	}
}
