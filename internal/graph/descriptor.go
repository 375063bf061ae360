package graph

import "time"

// Storage names where a graph lives.
type Storage string

const (
	StorageMemory  Storage = "memory"
	StorageLocal   Storage = "local"
	StorageSession Storage = "session"
	StorageRemote  Storage = "remote"
	StorageGiven   Storage = "given"
)

// GraphTypeProvenance is the graphtype attribute of provenance graphs.
const GraphTypeProvenance = "provenance_graph"

// DefaultPermissions grants everything to the owner and read to others.
const DefaultPermissions = 0o744

// Descriptor is manager-level metadata about one graph instance.
type Descriptor struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Creator     string          `json:"creator,omitempty" yaml:"creator,omitempty"`
	TS          int64           `json:"ts" yaml:"ts"`
	Size        [2]int          `json:"size" yaml:"size"`
	Local       bool            `json:"local" yaml:"local"`
	Storage     Storage         `json:"storage,omitempty" yaml:"storage,omitempty"`
	Attrs       DescriptorAttrs `json:"attrs" yaml:"attrs"`
	Permissions int             `json:"permissions" yaml:"permissions"`
}

// DescriptorAttrs identifies the kind of graph and the application it
// belongs to.
type DescriptorAttrs struct {
	GraphType string `json:"graphtype" yaml:"graphtype"`
	Of        string `json:"of" yaml:"of"`
}

// Timestamp returns TS as a time.
func (d Descriptor) Timestamp() time.Time {
	return time.UnixMilli(d.TS)
}

// WithDefaults fills unset fields: graph type, permissions and timestamp.
func (d Descriptor) WithDefaults(now time.Time) Descriptor {
	if d.Attrs.GraphType == "" {
		d.Attrs.GraphType = GraphTypeProvenance
	}
	if d.Permissions == 0 {
		d.Permissions = DefaultPermissions
	}
	if d.TS == 0 {
		d.TS = now.UnixMilli()
	}
	return d
}
