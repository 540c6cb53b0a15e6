package common

import (
	"fmt"
	"sort"
	"strings"
)

// MemoryFootprint describes the memory consumption of a storage structure.
type MemoryFootprint struct {
	value    uintptr
	children map[string]*MemoryFootprint
	note     string
}

// NewMemoryFootprint creates a new MemoryFootprint instance for a storage structure.
func NewMemoryFootprint(value uintptr) *MemoryFootprint {
	return &MemoryFootprint{
		value:    value,
		children: make(map[string]*MemoryFootprint),
	}
}

// AddChild allows to attach a MemoryFootprint of a subcomponent.
func (mf *MemoryFootprint) AddChild(name string, child *MemoryFootprint) {
	mf.children[name] = child
}

// GetChild returns the footprint of the named subcomponent or nil.
func (mf *MemoryFootprint) GetChild(name string) *MemoryFootprint {
	return mf.children[name]
}

// SetNote attaches a free-form remark printed next to this footprint.
func (mf *MemoryFootprint) SetNote(note string) {
	mf.note = note
}

// Value provides the amount of bytes consumed by the structure (excluding its subcomponents)
func (mf *MemoryFootprint) Value() uintptr {
	return mf.value
}

// Total provides the amount of bytes consumed by the structure including all its subcomponents
func (mf *MemoryFootprint) Total() uintptr {
	return mf.total(map[*MemoryFootprint]bool{})
}

func (mf *MemoryFootprint) total(seen map[*MemoryFootprint]bool) uintptr {
	if mf == nil || seen[mf] {
		return 0
	}
	seen[mf] = true
	res := mf.value
	for _, child := range mf.children {
		res += child.total(seen)
	}
	return res
}

func (mf *MemoryFootprint) String() string {
	var sb strings.Builder
	mf.print(&sb, ".", map[*MemoryFootprint]bool{})
	return sb.String()
}

func (mf *MemoryFootprint) print(sb *strings.Builder, path string, seen map[*MemoryFootprint]bool) {
	if mf == nil || seen[mf] {
		return
	}
	seen[mf] = true
	writeMemoryAmount(sb, mf.Total())
	sb.WriteRune(' ')
	sb.WriteString(path)
	if mf.note != "" {
		sb.WriteString(" (")
		sb.WriteString(mf.note)
		sb.WriteRune(')')
	}
	sb.WriteRune('\n')

	names := make([]string, 0, len(mf.children))
	for name := range mf.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mf.children[name].print(sb, path+"/"+name, seen)
	}
}

func writeMemoryAmount(sb *strings.Builder, bytes uintptr) {
	const unit = 1024
	const prefixes = "KMGTPE"
	if bytes < unit {
		fmt.Fprintf(sb, "%d B", bytes)
		return
	}
	div, exp := uint64(unit), 0
	for n := uint64(bytes) / unit; n >= unit && exp+1 < len(prefixes); n /= unit {
		div *= unit
		exp++
	}
	fmt.Fprintf(sb, "%.1f %cB", float64(bytes)/float64(div), prefixes[exp])
}
