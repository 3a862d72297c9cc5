package apptype

import "fmt"

// EntityType classifies a node in the people network
type EntityType string

const (
	EntityTypePerson EntityType = "person"
	EntityTypeGroup  EntityType = "group"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return t == EntityTypePerson || t == EntityTypeGroup
}

// ConnectionType describes which way a connection can be traversed
type ConnectionType string

const (
	ConnectionOneWay        ConnectionType = "one-way"
	ConnectionBiDirectional ConnectionType = "bi-directional"
)

// Valid reports whether t is one of the known connection types.
func (t ConnectionType) Valid() bool {
	return t == ConnectionOneWay || t == ConnectionBiDirectional
}

// Entity represents a person or group in the network
type Entity struct {
	ID   string     `json:"id" validate:"required"`
	Name string     `json:"name" validate:"required"`
	Type EntityType `json:"type" validate:"required,oneof=person group"`
}

// Connection represents a relationship between two entities.
// From and To hold entity ids.
type Connection struct {
	From string         `json:"from" validate:"required"`
	To   string         `json:"to" validate:"required"`
	Type ConnectionType `json:"type" validate:"required,oneof=one-way bi-directional"`
}

// Reaches reports whether the connection can be followed from one entity to the other.
func (c Connection) Reaches(from, to string) bool {
	if c.From == from && c.To == to {
		return true
	}
	return c.Type == ConnectionBiDirectional && c.From == to && c.To == from
}

// Involves reports whether id is either endpoint of the connection.
func (c Connection) Involves(id string) bool {
	return c.From == id || c.To == id
}

// Network is a snapshot of entities and the connections between them
type Network struct {
	Entities    []Entity     `json:"entities"`
	Connections []Connection `json:"connections"`
}

// Validate checks that entity ids are unique and that every connection
// references entities present in the snapshot.
func (n Network) Validate() error {
	ids := make(map[string]struct{}, len(n.Entities))
	for _, e := range n.Entities {
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("duplicate entity id %q", e.ID)
		}
		ids[e.ID] = struct{}{}
	}
	for _, c := range n.Connections {
		if _, ok := ids[c.From]; !ok {
			return fmt.Errorf("connection %s -> %s: unknown entity %q", c.From, c.To, c.From)
		}
		if _, ok := ids[c.To]; !ok {
			return fmt.Errorf("connection %s -> %s: unknown entity %q", c.From, c.To, c.To)
		}
	}
	return nil
}
