package ingest

// ChangeSet is an explicit set of path_key changes to apply instead of
// deriving one by diffing the discovered file list (spec §4.4: "Inputs: a
// canonical root, the store id, and an optional explicit ChangeSet").
type ChangeSet struct {
	Add    []string
	Modify []string
	Delete []string
	// Rename maps old path_key -> new path_key. Each rename tombstones the
	// old path and ingests the new path as a fresh add (spec §4.4 step 8).
	Rename map[string]string
}

// IsZero reports whether the changeset carries no entries, in which case
// the syncer derives one by diffing against stored metadata.
func (c *ChangeSet) IsZero() bool {
	return c == nil || (len(c.Add) == 0 && len(c.Modify) == 0 && len(c.Delete) == 0 && len(c.Rename) == 0)
}
