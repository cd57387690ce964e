package kelo

// SpaceKind classifies a run of fields as seen by the flush planner.
// Deleted leading fields are folded into Empty (see DESIGN.md's Open
// Question resolution); the planner never distinguishes them.
type SpaceKind int

const (
	SpaceEmpty SpaceKind = iota
	SpaceOccupied
)

// Space is one run of contiguous same-class fields starting at a field
// boundary: either a run of Uninitialized/Deleted fields (Empty) or one
// live record (Occupied, with Data pointing at its raw bytes including
// headers).
type Space struct {
	Kind   SpaceKind
	Offset int64
	Data   []byte // set for SpaceOccupied
	Len    int    // raw byte length of the run
}

// spaceIterator walks a data file's fields from a given offset,
// classifying each contiguous run it finds. It always starts a peek at
// a field boundary that begins some run, by construction: every
// previous Space it yields has a Len that is itself a whole number of
// fields, so offset+=Len never lands mid-run.
type spaceIterator struct {
	data      []byte
	fieldSize int
	offset    int64
}

func newSpaceIterator(data []byte, fieldSize int, offset int64) *spaceIterator {
	return &spaceIterator{data: data, fieldSize: fieldSize, offset: offset}
}

func (it *spaceIterator) moveTo(offset int64) {
	it.offset = offset
}

// peek classifies the run starting at the iterator's current offset
// without advancing.
func (it *spaceIterator) peek() (Space, error) {
	fs := int64(it.fieldSize)
	if it.offset+fs > int64(len(it.data)) {
		return Space{}, &InvalidFieldError{Offset: it.offset, Detail: "space iterator ran past end of data file"}
	}
	header := it.data[it.offset]
	switch header {
	case headerUninitialized:
		end := it.offset
		for end+fs <= int64(len(it.data)) && it.data[end] == headerUninitialized {
			end += fs
		}
		return Space{Kind: SpaceEmpty, Offset: it.offset, Len: int(end - it.offset)}, nil
	case headerDeleted:
		end := it.offset + fs
		for end+fs <= int64(len(it.data)) && it.data[end] == headerContinued {
			end += fs
		}
		return Space{Kind: SpaceEmpty, Offset: it.offset, Len: int(end - it.offset)}, nil
	case headerInserted:
		end := it.offset + fs
		for end+fs <= int64(len(it.data)) && it.data[end] == headerContinued {
			end += fs
		}
		return Space{Kind: SpaceOccupied, Offset: it.offset, Data: it.data[it.offset:end], Len: int(end - it.offset)}, nil
	default:
		return Space{}, &InvalidFieldError{Offset: it.offset, Detail: "invalid field header byte"}
	}
}

// next classifies the run at the current offset and advances past it.
func (it *spaceIterator) next() (Space, error) {
	sp, err := it.peek()
	if err != nil {
		return Space{}, err
	}
	it.offset += int64(sp.Len)
	return sp, nil
}
