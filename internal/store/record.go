package store

// Handle is a non-zero, monotonically increasing variable identifier.
// Handle 0 is InvalidHandle, reserved per spec.md §3.
type Handle uint32

// InvalidHandle is the reserved zero handle.
const InvalidHandle Handle = 0

// MaxNameLength bounds a variable or alias name, per spec.md §3/§6.
const MaxNameLength = 63

// Info is the create-time description of a variable, passed to
// Store.Create.
type Info struct {
	Name        string
	InstanceID  uint32
	GUID        uint32
	Type        Type
	Cap         int // declared capacity for String/Blob; ignored otherwise
	Flags       Flags
	Tags        []TagID
	Format      string // ≤ 8 chars, per spec.md §3
	Permissions Permissions
}

// varData is the mutable state shared by a variable's primary name
// binding and every alias bound to it (spec.md §3: "Ownership:
// [alias] lifetime equals the primary record"). Keeping this separate
// from Record lets each name binding carry its own Name/GUID/InstanceID
// while Value/Flags/Tags/Permissions stay single-sourced.
type varData struct {
	value       Value
	flags       Flags
	tags        []TagID
	format      string
	permissions Permissions
	creatorUID  uint32
	// aliasHandles lists every secondary handle bound to this data,
	// for GET_ALIASES. Recorded on the primary's varData only.
	aliasHandles []Handle
}

// Record is one name binding over a variable's shared data: either
// the primary binding (created by NEW) or a secondary one (created by
// ALIAS). Aliases are flat — spec.md §3 forbids aliasing an alias —
// so Primary is always a primary Record, never itself an alias.
type Record struct {
	Handle     Handle
	Name       string
	InstanceID uint32
	GUID       uint32

	data    *varData
	isAlias bool
	primary Handle // only meaningful when isAlias
}

func (r *Record) Value() Value             { return r.data.value }
func (r *Record) Flags() Flags             { return r.data.flags }
func (r *Record) Tags() []TagID            { return append([]TagID(nil), r.data.tags...) }
func (r *Record) Format() string           { return r.data.format }
func (r *Record) Permissions() Permissions { return r.data.permissions }
func (r *Record) CreatorUID() uint32       { return r.data.creatorUID }

// Aliases returns the secondary handles bound to this record's data.
// Only meaningful on a primary record; aliases return nil.
func (r *Record) Aliases() []Handle {
	if r.isAlias {
		return nil
	}
	out := make([]Handle, len(r.data.aliasHandles))
	copy(out, r.data.aliasHandles)
	return out
}
