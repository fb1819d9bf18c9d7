// Package shm implements the single-slot shared-memory mailbox that
// carries compressed-block fragments between the producer and the
// consumer. The wire layout is packed and bit-exact: every field is
// read and written at a fixed byte offset with encoding/binary rather
// than overlaid with an unsafe-cast Go struct, so Go's own alignment
// rules never perturb the layout.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Wire constants, bit-exact with the shared-memory layout.
const (
	MaxPayload      = 200
	RegionSize      = 256
	BlockSize       = 64 * 1024 // UNCOMPRESSED_BLOCK_SIZE
	SentinelBlockID = 0xFFFFFFFF

	offSyncFlag         = 0
	offMessageAvailable = 4
	offBlockID          = 8
	offFragmentSeq      = 12
	offLastFragment     = 16
	offPayloadLen       = 17
	offPayload          = 21

	headerSize = offPayload // 21 bytes before the payload
)

func init() {
	if headerSize+MaxPayload > RegionSize {
		panic(fmt.Sprintf("shm: header(%d)+payload(%d) exceeds region size %d", headerSize, MaxPayload, RegionSize))
	}
}

// Region is a typed view over the raw bytes of the shared-memory slot.
// It can be backed by an mmap'd file (Create/Open) or, for tests, by a
// plain in-process byte slice (newRegion).
type Region struct {
	data []byte // len == RegionSize
	file *os.File
	name string
}

func newRegion(data []byte) *Region {
	if len(data) != RegionSize {
		panic(fmt.Sprintf("shm: region buffer must be %d bytes, got %d", RegionSize, len(data)))
	}
	return &Region{data: data}
}

// NewLoopbackRegion builds a Region backed by a plain heap buffer
// instead of an mmap'd file. It implements the same lock and framing
// discipline as a real shared-memory region, so producer/consumer
// code can be exercised in a single process without touching
// /dev/shm — used by this module's own tests.
func NewLoopbackRegion() *Region {
	return newRegion(make([]byte, RegionSize))
}

// Create creates (or truncates) the named shared-memory object and
// maps it read/write. This is the producer's role: whichever peer
// creates the region first leaves it zero-initialized.
func Create(name string) (*Region, error) {
	return attach(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

// Open opens the named shared-memory object, creating it
// zero-initialized if it does not yet exist. This is the consumer's
// role; it never truncates a region the producer may already be
// writing into.
func Open(name string) (*Region, error) {
	return attach(name, os.O_RDWR|os.O_CREATE)
}

func attach(name string, flags int) (*Region, error) {
	path := "/dev/shm/" + name
	f, err := os.OpenFile(path, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	if err := f.Truncate(RegionSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Region{data: data, file: f, name: path}, nil
}

// Close unmaps the region. The underlying file descriptor is also
// closed; the backing shared-memory object is left in place.
func (r *Region) Close() error {
	var err error
	if r.file != nil {
		err = unix.Munmap(r.data)
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Unlink removes the named shared-memory object from /dev/shm. Per
// the reference design, the consumer owns teardown/removal.
func (r *Region) Unlink() error {
	if r.name == "" {
		return nil
	}
	return os.Remove(r.name)
}

func (r *Region) syncFlagPtr() *uint32 {
	return (*uint32)(unsafe.Pointer(&r.data[offSyncFlag]))
}

// Lock spins on the sync_flag word with a compare-and-set from 0 to 1
// under acquire-release ordering, yielding the scheduler on every
// failed attempt. It never sleeps — the consumer's softer backoff
// while the slot is empty lives in Channel.Send/Receive.
func (r *Region) Lock() {
	for !atomic.CompareAndSwapUint32(r.syncFlagPtr(), 0, 1) {
		runtime.Gosched()
	}
}

// Unlock stores 0 into sync_flag with release ordering.
func (r *Region) Unlock() {
	atomic.StoreUint32(r.syncFlagPtr(), 0)
}

// WithLock runs f with the slot lock held, guaranteeing release even
// if f panics.
func (r *Region) WithLock(f func()) {
	r.Lock()
	defer r.Unlock()
	f()
}

// The remaining accessors must only be called with the lock held;
// they are not themselves atomic.

func (r *Region) messageAvailable() uint32 {
	return binary.LittleEndian.Uint32(r.data[offMessageAvailable : offMessageAvailable+4])
}

func (r *Region) setMessageAvailable(v uint32) {
	binary.LittleEndian.PutUint32(r.data[offMessageAvailable:offMessageAvailable+4], v)
}

func (r *Region) blockID() uint32 {
	return binary.LittleEndian.Uint32(r.data[offBlockID : offBlockID+4])
}

func (r *Region) setBlockID(v uint32) {
	binary.LittleEndian.PutUint32(r.data[offBlockID:offBlockID+4], v)
}

func (r *Region) fragmentSeq() uint32 {
	return binary.LittleEndian.Uint32(r.data[offFragmentSeq : offFragmentSeq+4])
}

func (r *Region) setFragmentSeq(v uint32) {
	binary.LittleEndian.PutUint32(r.data[offFragmentSeq:offFragmentSeq+4], v)
}

func (r *Region) lastFragment() bool {
	return r.data[offLastFragment] != 0
}

func (r *Region) setLastFragment(v bool) {
	if v {
		r.data[offLastFragment] = 1
	} else {
		r.data[offLastFragment] = 0
	}
}

func (r *Region) payloadLen() uint32 {
	return binary.LittleEndian.Uint32(r.data[offPayloadLen : offPayloadLen+4])
}

func (r *Region) setPayloadLen(v uint32) {
	binary.LittleEndian.PutUint32(r.data[offPayloadLen:offPayloadLen+4], v)
}

func (r *Region) payload() []byte {
	return r.data[offPayload : offPayload+MaxPayload]
}
