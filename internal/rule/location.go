package rule

// ActionSentinel marks a Location with no matched action. It consumes the
// top value of the 10-bit Action field, so the action vector's effective
// capacity is MaxActions-1 despite MaxActions' bit width — the quirk
// spec.md §9 flags: "if the cap is raised, the Location layout must be
// revised."
const ActionSentinel = (1 << 10) - 1

// Location packs one disassembled instruction's bookkeeping into 8 bytes,
// since instruction counts reach the millions. Bit layout, low to high:
// offset[0:48] size[48:52] emitted[52] patch[53] action[54:64].
type Location uint64

const (
	offsetBits  = 48
	sizeBits    = 4
	emittedBits = 1
	patchBits   = 1
	actionBits  = 10

	offsetShift  = 0
	sizeShift    = offsetShift + offsetBits
	emittedShift = sizeShift + sizeBits
	patchShift   = emittedShift + emittedBits
	actionShift  = patchShift + patchBits

	offsetMask = (uint64(1) << offsetBits) - 1
	sizeMask   = (uint64(1) << sizeBits) - 1
	actionMask = (uint64(1) << actionBits) - 1
)

// NewLocation builds a Location for a freshly decoded instruction, not yet
// matched against any action.
func NewLocation(offset uint64, size uint8) Location {
	var l Location
	l = l.withOffset(offset).withSize(size)
	return l.withAction(ActionSentinel)
}

func (l Location) withOffset(v uint64) Location {
	return Location((uint64(l) &^ (offsetMask << offsetShift)) | ((v & offsetMask) << offsetShift))
}

func (l Location) withSize(v uint8) Location {
	return Location((uint64(l) &^ (sizeMask << sizeShift)) | ((uint64(v) & sizeMask) << sizeShift))
}

func (l Location) withAction(v int) Location {
	return Location((uint64(l) &^ (actionMask << actionShift)) | ((uint64(v) & actionMask) << actionShift))
}

// Offset is the file offset within the code section.
func (l Location) Offset() uint64 { return (uint64(l) >> offsetShift) & offsetMask }

// Size is the instruction's byte length, 1..15.
func (l Location) Size() uint8 { return uint8((uint64(l) >> sizeShift) & sizeMask) }

// Emitted reports whether this Location's instruction message has already
// been sent during reverse emission (the one-shot latch of spec.md §4.6).
func (l Location) Emitted() bool { return (uint64(l)>>emittedShift)&1 != 0 }

// Patch reports whether this Location was selected by the matching pass.
func (l Location) Patch() bool { return (uint64(l)>>patchShift)&1 != 0 }

// Action returns the matched action's index into the action vector, or
// ActionSentinel if none matched.
func (l Location) Action() int { return int((uint64(l) >> actionShift) & actionMask) }

// HasAction reports whether Action() is a real index rather than the
// sentinel.
func (l Location) HasAction() bool { return l.Action() != ActionSentinel }

// WithEmitted returns a copy with the emitted latch set.
func (l Location) WithEmitted(v bool) Location {
	if v {
		return Location(uint64(l) | (1 << emittedShift))
	}
	return Location(uint64(l) &^ (1 << emittedShift))
}

// WithPatch returns a copy with the patch flag set.
func (l Location) WithPatch(v bool) Location {
	if v {
		return Location(uint64(l) | (1 << patchShift))
	}
	return Location(uint64(l) &^ (1 << patchShift))
}

// WithAction returns a copy carrying the matched action's index.
func (l Location) WithAction(idx int) Location {
	return l.withAction(idx)
}
