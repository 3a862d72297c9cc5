package apptype

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumValidity(t *testing.T) {
	assert.True(t, EntityTypePerson.Valid())
	assert.True(t, EntityTypeGroup.Valid())
	assert.False(t, EntityType("team").Valid())
	assert.True(t, ConnectionOneWay.Valid())
	assert.True(t, ConnectionBiDirectional.Valid())
	assert.False(t, ConnectionType("two-way").Valid())
}

func TestConnectionReaches(t *testing.T) {
	oneWay := Connection{From: "a", To: "b", Type: ConnectionOneWay}
	assert.True(t, oneWay.Reaches("a", "b"))
	assert.False(t, oneWay.Reaches("b", "a"))

	both := Connection{From: "a", To: "b", Type: ConnectionBiDirectional}
	assert.True(t, both.Reaches("a", "b"))
	assert.True(t, both.Reaches("b", "a"))
	assert.False(t, both.Reaches("a", "c"))
}

func TestNetworkValidate(t *testing.T) {
	n := Network{
		Entities: []Entity{
			{ID: "alice", Name: "Alice", Type: EntityTypePerson},
			{ID: "club", Name: "Chess Club", Type: EntityTypeGroup},
		},
		Connections: []Connection{{From: "alice", To: "club", Type: ConnectionOneWay}},
	}
	require.NoError(t, n.Validate())

	n.Connections = append(n.Connections, Connection{From: "alice", To: "bob", Type: ConnectionOneWay})
	assert.ErrorContains(t, n.Validate(), `unknown entity "bob"`)

	dup := Network{Entities: []Entity{{ID: "x"}, {ID: "x"}}}
	assert.ErrorContains(t, dup.Validate(), "duplicate entity id")
}

func TestJSONUsesLowercaseValues(t *testing.T) {
	data, err := json.Marshal(Connection{From: "a", To: "b", Type: ConnectionBiDirectional})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"a","to":"b","type":"bi-directional"}`, string(data))
}
