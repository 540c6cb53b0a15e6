package page

// ID identifies a page within a page file. Valid IDs are non-negative.
type ID int32

// NoID is the persisted encoding of a page without an assigned ID. In memory
// the absence of an ID is signalled by the boolean returned by Page.PageID.
const NoID = ID(-1)

// Page is the unit of storage managed by a page file. Page files only manage
// the identity and the persistence of pages; the interpretation of the
// payload is up to the client.
type Page interface {
	// PageID returns the ID of this page and whether one has been assigned.
	PageID() (ID, bool)
	// SetPageID assigns an ID to this page. Passing NoID resets the page to
	// the unassigned state.
	SetPageID(ID)
	// IsDirty reports whether the page was modified since it was last written.
	IsDirty() bool
	// SetDirty updates the dirty flag of this page.
	SetDirty(bool)
}

// Serializable pages can be stored by page files backed by persistent media.
type Serializable interface {
	Page
	// ToBytes encodes the payload of the page into the given buffer, which
	// has at least the page size of the page file storing this page.
	ToBytes([]byte) error
	// FromBytes restores the payload of the page from the given buffer.
	FromBytes([]byte) error
}

// Base implements the identity and dirty tracking part of the Page interface
// and is intended to be embedded into concrete page types. A new Base has
// no ID and is dirty.
type Base struct {
	id    ID
	set   bool
	clean bool
}

func (b *Base) PageID() (ID, bool) {
	if !b.set {
		return NoID, false
	}
	return b.id, true
}

func (b *Base) SetPageID(id ID) {
	b.id = id
	b.set = id >= 0
}

func (b *Base) IsDirty() bool {
	return !b.clean
}

func (b *Base) SetDirty(dirty bool) {
	b.clean = !dirty
}
