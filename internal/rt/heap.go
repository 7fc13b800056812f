package rt

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"fortio.org/safecast"

	"latte/internal/trace"
)

// Handle names one heap block. Handle 0 is never issued.
type Handle uint32

// BlockKind tells what a heap block was allocated as.
type BlockKind uint8

const (
	BlockString BlockKind = iota + 1
	BlockArray
)

func (k BlockKind) String() string {
	switch k {
	case BlockString:
		return "string"
	case BlockArray:
		return "array"
	default:
		return "unknown"
	}
}

// MaxSize is the largest size a Latte int can request.
const MaxSize = math.MaxInt32

type block struct {
	kind    BlockKind
	data    []byte
	allocID uint64
	alive   bool
}

// HeapStats is a snapshot of heap counters.
type HeapStats struct {
	Allocs     uint64
	Frees      uint64
	LiveBlocks uint64
	LiveBytes  int64
	PeakBytes  int64
}

// BlockInfo describes one live block, for leak reports.
type BlockInfo struct {
	Handle  Handle
	Kind    BlockKind
	Size    int
	AllocID uint64
}

// Heap owns every buffer handed out by the runtime.
// Handles are monotonically increasing and never reused within a heap.
// A released block stays in the table so later use is caught.
type Heap struct {
	next      Handle
	blocks    map[Handle]*block
	limit     int64 // 0 = unlimited
	liveBytes int64
	peakBytes int64
	allocs    uint64
	frees     uint64

	tracer trace.Tracer
	parent func() uint64
}

// NewHeap creates a heap. limit caps live bytes; 0 disables the cap.
func NewHeap(limit int64) *Heap {
	return &Heap{
		next:   1,
		blocks: make(map[Handle]*block, 128),
		limit:  limit,
		tracer: trace.Nop,
	}
}

// SetTracer routes heap events to t. parent supplies the enclosing span.
func (h *Heap) SetTracer(t trace.Tracer, parent func() uint64) {
	if t == nil {
		t = trace.Nop
	}
	h.tracer = t
	h.parent = parent
}

// Limit returns the configured live byte cap.
func (h *Heap) Limit() int64 {
	return h.limit
}

// Alloc returns a fresh zero-filled block of exactly n bytes.
func (h *Heap) Alloc(kind BlockKind, n int) (Handle, error) {
	if n < 0 {
		return 0, fatal(OutOfMemory, "", fmt.Sprintf("negative allocation size %d", n), nil)
	}
	size, err := safecast.Conv[int64](n)
	if err != nil {
		return 0, fatal(OutOfMemory, "", "allocation size out of range", err)
	}
	if h.limit > 0 && h.liveBytes+size > h.limit {
		return 0, fatal(OutOfMemory, "", fmt.Sprintf("heap limit %d exceeded: live %d, requested %d", h.limit, h.liveBytes, size), nil)
	}
	if h.next == 0 {
		return 0, fatal(OutOfMemory, "", "handle space exhausted", nil)
	}

	handle := h.next
	h.next++
	h.allocs++
	h.blocks[handle] = &block{
		kind:    kind,
		data:    make([]byte, n),
		allocID: h.allocs,
		alive:   true,
	}
	h.liveBytes += size
	if h.liveBytes > h.peakBytes {
		h.peakBytes = h.liveBytes
	}

	h.point("alloc", handle, kind, n)
	return handle, nil
}

// Bytes returns the live storage of handle. The slice aliases the block.
func (h *Heap) Bytes(handle Handle) ([]byte, error) {
	b, err := h.get(handle)
	if err != nil {
		return nil, err
	}
	return b.data, nil
}

// Kind reports what handle was allocated as.
func (h *Heap) Kind(handle Handle) (BlockKind, error) {
	b, err := h.get(handle)
	if err != nil {
		return 0, err
	}
	return b.kind, nil
}

// Free releases handle. The handle is never valid again.
func (h *Heap) Free(handle Handle) error {
	if handle == 0 {
		return fatal(InvalidHandle, "", "invalid handle 0", nil)
	}
	b, ok := h.blocks[handle]
	if !ok {
		return fatal(InvalidHandle, "", fmt.Sprintf("invalid handle %d", handle), nil)
	}
	if !b.alive {
		return fatal(DoubleFree, "", fmt.Sprintf("double free: handle %d (alloc=%d)", handle, b.allocID), nil)
	}
	b.alive = false
	h.liveBytes -= int64(len(b.data))
	h.frees++
	h.point("free", handle, b.kind, len(b.data))
	b.data = nil
	return nil
}

// Stats returns a snapshot of heap counters.
func (h *Heap) Stats() HeapStats {
	return HeapStats{
		Allocs:     h.allocs,
		Frees:      h.frees,
		LiveBlocks: h.allocs - h.frees,
		LiveBytes:  h.liveBytes,
		PeakBytes:  h.peakBytes,
	}
}

// Live lists blocks that were never released, oldest first.
func (h *Heap) Live() []BlockInfo {
	out := make([]BlockInfo, 0, h.allocs-h.frees)
	for handle, b := range h.blocks {
		if !b.alive {
			continue
		}
		out = append(out, BlockInfo{Handle: handle, Kind: b.kind, Size: len(b.data), AllocID: b.allocID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (h *Heap) get(handle Handle) (*block, error) {
	if handle == 0 {
		return nil, fatal(InvalidHandle, "", "invalid handle 0", nil)
	}
	b, ok := h.blocks[handle]
	if !ok {
		return nil, fatal(InvalidHandle, "", fmt.Sprintf("invalid handle %d", handle), nil)
	}
	if !b.alive {
		return nil, fatal(UseAfterFree, "", fmt.Sprintf("use after free: handle %d (alloc=%d)", handle, b.allocID), nil)
	}
	return b, nil
}

func (h *Heap) point(name string, handle Handle, kind BlockKind, size int) {
	if !h.tracer.Enabled() {
		return
	}
	var parent uint64
	if h.parent != nil {
		parent = h.parent()
	}
	trace.Point(h.tracer, trace.ScopeHeap, name, parent, "", map[string]string{
		"handle": strconv.FormatUint(uint64(handle), 10),
		"kind":   kind.String(),
		"size":   strconv.Itoa(size),
		"live":   strconv.FormatInt(h.liveBytes, 10),
	})
}
