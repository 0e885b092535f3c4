// Package rel describes a table's attribute list and storage options (§3),
// used by the columnar writer in access/cs.
package rel

import "github.com/kuibadb/kuiba/ids"

// Attribute is one column of a relation.
type Attribute struct {
	Number  int16
	Name    string
	TypeOid ids.Oid
	TypeLen int16 // negative for varlen types, per the -1/-2 PostgreSQL convention
	Align   byte  // 'c', 's', 'i', 'd' — char/short/int/double alignment class
	Typmod  int32
	NotNull bool
	Dropped bool
}

// Options are the per-table storage knobs (§3).
type Options struct {
	MvccBlkRows  int
	MvccBufCap   int
	DataBlkRows  int
	EnableCsWal  bool
}

// DefaultOptions mirrors the GUC defaults used when a table doesn't
// override them.
func DefaultOptions() Options {
	return Options{
		MvccBlkRows: 8192,
		MvccBufCap:  4096,
		DataBlkRows: 8192,
		EnableCsWal: false,
	}
}

// Relation is an ordered attribute list plus storage options.
type Relation struct {
	Oid        ids.Oid
	Name       string
	Attributes []Attribute
	Options    Options
}

// New builds a Relation with default options.
func New(oid ids.Oid, name string, attrs []Attribute) *Relation {
	return &Relation{Oid: oid, Name: name, Attributes: attrs, Options: DefaultOptions()}
}

// LiveAttributes returns attributes excluding dropped columns, in ordinal
// order.
func (r *Relation) LiveAttributes() []Attribute {
	live := make([]Attribute, 0, len(r.Attributes))
	for _, a := range r.Attributes {
		if !a.Dropped {
			live = append(live, a)
		}
	}
	return live
}

// NotNullMask reports, per live attribute index, whether it is NOT NULL —
// the input the columnar writer (§4.9) checks on every write.
func (r *Relation) NotNullMask() []bool {
	live := r.LiveAttributes()
	mask := make([]bool, len(live))
	for i, a := range live {
		mask[i] = a.NotNull
	}
	return mask
}
