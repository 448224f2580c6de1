package arena

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// MemoryAcquirer is an interface for acquiring memory.
type MemoryAcquirer interface {
	AcquireMemory(bytes int64) error
	ReleaseMemory(bytes int64)
}

var (
	// ErrCapacityExceeded is returned when the addressable handle space is exhausted
	// or the memory acquirer refuses to back another buffer.
	ErrCapacityExceeded = errors.New("arena: capacity exceeded")
)

const (
	// OffsetBits is the number of Ref bits used for the array offset within a buffer.
	OffsetBits = 22
	// BufferBits is the number of Ref bits used for the buffer id.
	BufferBits = 32 - OffsetBits

	// MaxBuffers is the number of buffer ids a Ref can address.
	MaxBuffers = 1 << BufferBits
	// MaxArraysPerBuffer is the number of array slots a Ref can address in one buffer.
	MaxArraysPerBuffer = 1 << OffsetBits

	// DefaultMaxSmallArraySize is the largest array length stored in a shared buffer.
	DefaultMaxSmallArraySize = 64
	// DefaultMinArraysPerBuffer is the capacity of the first buffer of a size class.
	DefaultMinArraysPerBuffer = 256

	offsetMask = MaxArraysPerBuffer - 1
	largeClass = 0
)

// Ref is a compact reference to an array in a Store.
// The zero Ref denotes the empty array.
type Ref uint32

func makeRef(bufferID, offset uint32) Ref {
	return Ref(bufferID<<OffsetBits | offset)
}

// Valid reports whether the ref points at an allocated array.
func (r Ref) Valid() bool { return r != 0 }

// BufferID returns the buffer component of the ref.
func (r Ref) BufferID() uint32 { return uint32(r) >> OffsetBits }

// Offset returns the array slot within the buffer.
func (r Ref) Offset() uint32 { return uint32(r) & offsetMask }

func (r Ref) String() string {
	return fmt.Sprintf("ref(%d:%d)", r.BufferID(), r.Offset())
}

// Options configures a Store.
type Options struct {
	// MaxSmallArraySize is the longest array stored inline in a size-classed buffer.
	// Longer arrays are allocated individually and tracked in large-array buffers.
	MaxSmallArraySize int

	// MinArraysPerBuffer is the capacity of the first buffer of each size class.
	// Each following buffer of the same class doubles, up to MaxArraysPerBuffer.
	MinArraysPerBuffer int

	// MaxArraysPerBuffer caps the capacity of a single buffer.
	MaxArraysPerBuffer int

	// MaxBuffers caps the number of buffers the store may create.
	MaxBuffers int

	// MemoryAcquirer, if set, is charged for every buffer and large array.
	MemoryAcquirer MemoryAcquirer
}

// DefaultOptions contains the default configuration of a Store.
var DefaultOptions = Options{
	MaxSmallArraySize:  DefaultMaxSmallArraySize,
	MinArraysPerBuffer: DefaultMinArraysPerBuffer,
	MaxArraysPerBuffer: MaxArraysPerBuffer,
	MaxBuffers:         MaxBuffers,
}

// Option is a configuration option for Store.
type Option func(*Options)

// WithMaxSmallArraySize sets the longest array stored in a shared buffer.
func WithMaxSmallArraySize(n int) Option {
	return func(o *Options) { o.MaxSmallArraySize = n }
}

// WithArraysPerBuffer sets the minimum and maximum buffer capacity.
func WithArraysPerBuffer(minArrays, maxArrays int) Option {
	return func(o *Options) {
		o.MinArraysPerBuffer = minArrays
		o.MaxArraysPerBuffer = maxArrays
	}
}

// WithMaxBuffers caps the number of buffers.
func WithMaxBuffers(n int) Option {
	return func(o *Options) { o.MaxBuffers = n }
}

// WithMemoryAcquirer sets the memory acquirer for the store.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(o *Options) { o.MemoryAcquirer = acquirer }
}

func (o *Options) normalize() {
	if o.MaxSmallArraySize <= 0 {
		o.MaxSmallArraySize = DefaultMaxSmallArraySize
	}
	if o.MaxArraysPerBuffer <= 0 || o.MaxArraysPerBuffer > MaxArraysPerBuffer {
		o.MaxArraysPerBuffer = MaxArraysPerBuffer
	}
	if o.MinArraysPerBuffer <= 0 {
		o.MinArraysPerBuffer = DefaultMinArraysPerBuffer
	}
	if o.MinArraysPerBuffer > o.MaxArraysPerBuffer {
		o.MinArraysPerBuffer = o.MaxArraysPerBuffer
	}
	if o.MaxBuffers <= 0 || o.MaxBuffers > MaxBuffers {
		o.MaxBuffers = MaxBuffers
	}
}

// Stats tracks store usage.
type Stats struct {
	Buffers       int   // buffers created
	LiveArrays    int64 // arrays handed out and not yet freed
	HeldArrays    int64 // arrays waiting for reclamation
	FreeArrays    int64 // slots on the free lists
	BytesReserved int64 // backing memory of all buffers and large arrays
}

type buffer[T any] struct {
	id        uint32
	class     int
	arraySize int
	capacity  int
	data      []T   // small classes: capacity*arraySize elements
	large     [][]T // large class: one slice per slot
	used      int   // writer-only
}

func (b *buffer[T]) view(offset uint32) []T {
	if b.class == largeClass {
		return b.large[offset]
	}
	start := int(offset) * b.arraySize
	end := start + b.arraySize
	return b.data[start:end:end]
}

type heldRef struct {
	ref Ref
	gen uint64
}

// Store is a single-writer, multi-reader array store.
type Store[T any] struct {
	opts     Options
	elemSize uintptr

	buffers    [MaxBuffers]atomic.Pointer[buffer[T]]
	numBuffers int

	// Writer-only state, indexed by size class (0 = large arrays).
	active  []*buffer[T]
	free    [][]Ref
	nextCap []int

	pending []Ref
	held    []heldRef

	liveArrays    atomic.Int64
	heldArrays    atomic.Int64
	freeArrays    atomic.Int64
	bytesReserved atomic.Int64
	bufferCount   atomic.Int64
}

// New creates a new Store.
func New[T any](optFns ...Option) *Store[T] {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()

	var zero T
	classes := opts.MaxSmallArraySize + 1

	s := &Store[T]{
		opts:     opts,
		elemSize: unsafe.Sizeof(zero),
		active:   make([]*buffer[T], classes),
		free:     make([][]Ref, classes),
		nextCap:  make([]int, classes),
	}
	for i := range s.nextCap {
		s.nextCap[i] = opts.MinArraysPerBuffer
	}
	return s
}

func (s *Store[T]) classOf(n int) int {
	if n > s.opts.MaxSmallArraySize {
		return largeClass
	}
	return n
}

// Add copies items into a new array and returns its ref.
// An empty input yields the zero ref without allocating.
func (s *Store[T]) Add(items []T) (Ref, error) {
	n := len(items)
	if n == 0 {
		return 0, nil
	}
	class := s.classOf(n)

	if class == largeClass {
		if err := s.charge(int64(n) * int64(s.elemSize)); err != nil {
			return 0, err
		}
	}

	if free := s.free[class]; len(free) > 0 {
		ref := free[len(free)-1]
		s.free[class] = free[:len(free)-1]
		s.freeArrays.Add(-1)
		s.write(ref, items)
		s.liveArrays.Add(1)
		return ref, nil
	}

	buf := s.active[class]
	if buf == nil || buf.used == buf.capacity {
		var err error
		if buf, err = s.newBuffer(class, n); err != nil {
			if class == largeClass {
				s.uncharge(int64(n) * int64(s.elemSize))
			}
			return 0, err
		}
	}

	ref := makeRef(buf.id, uint32(buf.used)) //nolint:gosec // bounded by MaxArraysPerBuffer
	buf.used++
	s.write(ref, items)
	s.liveArrays.Add(1)
	return ref, nil
}

func (s *Store[T]) write(ref Ref, items []T) {
	buf := s.buffers[ref.BufferID()].Load()
	if buf.class == largeClass {
		buf.large[ref.Offset()] = append(make([]T, 0, len(items)), items...)
		return
	}
	copy(buf.view(ref.Offset()), items)
}

func (s *Store[T]) newBuffer(class, arraySize int) (*buffer[T], error) {
	if s.numBuffers >= s.opts.MaxBuffers {
		return nil, fmt.Errorf("%w: %d buffers in use", ErrCapacityExceeded, s.numBuffers)
	}

	capacity := s.nextCap[class]
	if next := capacity * 2; next <= s.opts.MaxArraysPerBuffer {
		s.nextCap[class] = next
	}

	buf := &buffer[T]{class: class, arraySize: arraySize, capacity: capacity}
	var bytes int64
	if class == largeClass {
		buf.arraySize = 0
		bytes = int64(capacity) * int64(unsafe.Sizeof([]T(nil)))
	} else {
		bytes = int64(capacity) * int64(arraySize) * int64(s.elemSize)
	}
	if err := s.charge(bytes); err != nil {
		return nil, err
	}

	if class == largeClass {
		buf.large = make([][]T, capacity)
	} else {
		buf.data = make([]T, capacity*arraySize)
	}

	id := s.numBuffers
	buf.id = uint32(id) //nolint:gosec // bounded by MaxBuffers
	if id == 0 {
		// Slot 0 of buffer 0 is the zero ref.
		buf.used = 1
	}
	s.buffers[id].Store(buf)
	s.numBuffers++
	s.active[class] = buf

	s.bufferCount.Add(1)

	if buf.used == buf.capacity {
		// A one-slot first buffer is consumed by the zero ref.
		return s.newBuffer(class, arraySize)
	}
	return buf, nil
}

func (s *Store[T]) charge(bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	if s.opts.MemoryAcquirer != nil {
		if err := s.opts.MemoryAcquirer.AcquireMemory(bytes); err != nil {
			return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
		}
	}
	s.bytesReserved.Add(bytes)
	return nil
}

func (s *Store[T]) uncharge(bytes int64) {
	if bytes <= 0 {
		return
	}
	if s.opts.MemoryAcquirer != nil {
		s.opts.MemoryAcquirer.ReleaseMemory(bytes)
	}
	s.bytesReserved.Add(-bytes)
}

// Get returns a borrowed view of the array behind ref.
// The zero ref and unknown refs yield nil.
func (s *Store[T]) Get(ref Ref) []T {
	if ref == 0 {
		return nil
	}
	buf := s.buffers[ref.BufferID()].Load()
	if buf == nil || int(ref.Offset()) >= buf.capacity {
		return nil
	}
	return buf.view(ref.Offset())
}

// Free returns the array to its free list immediately.
// Only call it for refs that were never published to readers.
func (s *Store[T]) Free(ref Ref) {
	if ref == 0 {
		return
	}
	buf := s.buffers[ref.BufferID()].Load()
	if buf == nil {
		return
	}
	if buf.class == largeClass {
		s.uncharge(int64(len(buf.large[ref.Offset()])) * int64(s.elemSize))
		buf.large[ref.Offset()] = nil
	}
	s.free[buf.class] = append(s.free[buf.class], ref)
	s.liveArrays.Add(-1)
	s.freeArrays.Add(1)
}

// Hold schedules a published array for reclamation.
func (s *Store[T]) Hold(ref Ref) {
	if ref == 0 {
		return
	}
	s.pending = append(s.pending, ref)
	s.heldArrays.Add(1)
}

// AssignGeneration tags every pending hold with gen.
// Call it before the generation counter advances past gen.
func (s *Store[T]) AssignGeneration(gen uint64) {
	for _, ref := range s.pending {
		s.held = append(s.held, heldRef{ref: ref, gen: gen})
	}
	s.pending = s.pending[:0]
}

// Reclaim frees every held array whose generation is older than oldestUsed.
// It returns the number of arrays freed.
func (s *Store[T]) Reclaim(oldestUsed uint64) int {
	n := 0
	for n < len(s.held) && s.held[n].gen < oldestUsed {
		s.Free(s.held[n].ref)
		n++
	}
	if n == 0 {
		return 0
	}
	s.held = append(s.held[:0], s.held[n:]...)
	s.heldArrays.Add(int64(-n))
	return n
}

// Stats returns a snapshot of the store usage. Safe for concurrent use.
func (s *Store[T]) Stats() Stats {
	return Stats{
		Buffers:       int(s.bufferCount.Load()),
		LiveArrays:    s.liveArrays.Load(),
		HeldArrays:    s.heldArrays.Load(),
		FreeArrays:    s.freeArrays.Load(),
		BytesReserved: s.bytesReserved.Load(),
	}
}

// Close releases every buffer. The store must not be used afterwards.
func (s *Store[T]) Close() {
	for id := 0; id < s.numBuffers; id++ {
		s.buffers[id].Store(nil)
	}
	s.numBuffers = 0
	if n := s.bytesReserved.Swap(0); n > 0 && s.opts.MemoryAcquirer != nil {
		s.opts.MemoryAcquirer.ReleaseMemory(n)
	}
	for i := range s.active {
		s.active[i] = nil
		s.free[i] = nil
	}
	s.pending = nil
	s.held = nil
}

func (s *Store[T]) String() string {
	st := s.Stats()
	return fmt.Sprintf("arena.Store{buffers: %d, live: %d, held: %d, free: %d, reserved: %d}",
		st.Buffers, st.LiveArrays, st.HeldArrays, st.FreeArrays, st.BytesReserved)
}
