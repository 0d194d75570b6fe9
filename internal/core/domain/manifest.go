package domain

// ResourceID names a loadable unit. IDs are opaque and not required to be unique.
type ResourceID = string

// Manifest is the ordered list of resources returned by the manifest stage.
type Manifest []ResourceID

// Len returns the number of entries, duplicates included.
func (m Manifest) Len() int {
	return len(m)
}

// Clone returns a copy so callers cannot mutate a manifest that is being loaded.
func (m Manifest) Clone() Manifest {
	if m == nil {
		return nil
	}
	out := make(Manifest, len(m))
	copy(out, m)
	return out
}
