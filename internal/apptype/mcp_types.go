package apptype

// CreateEntitiesArgs represents the arguments for the create_entities tool
type CreateEntitiesArgs struct {
	Entities []Entity `json:"entities" jsonschema:"A list of entities to create or update. Entities without an id get a generated one."`
}

// CreateConnectionsArgs represents the arguments for the create_connections tool
type CreateConnectionsArgs struct {
	Connections []Connection `json:"connections" jsonschema:"A list of connections to create between existing entities."`
}

// ReadNetworkArgs represents the arguments for the read_network tool
type ReadNetworkArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of entities to return (default 50)."`
}

// OpenEntitiesArgs represents the arguments for the open_entities tool
type OpenEntitiesArgs struct {
	IDs                []string `json:"ids" jsonschema:"Entity ids to fetch."`
	IncludeConnections bool     `json:"includeConnections,omitempty" jsonschema:"Also return connections touching the entities."`
}

// NeighborsArgs represents the arguments for the neighbors tool
type NeighborsArgs struct {
	IDs       []string `json:"ids" jsonschema:"Entity ids to expand."`
	Direction string   `json:"direction,omitempty" jsonschema:"One of out, in or both (default both)."`
	Limit     int      `json:"limit,omitempty" jsonschema:"Maximum number of connections to consider."`
}

// DeleteEntityArgs represents the arguments for the delete_entity tool
type DeleteEntityArgs struct {
	ID string `json:"id" jsonschema:"The id of the entity to delete."`
}

// DeleteConnectionArgs represents the arguments for the delete_connection tool
type DeleteConnectionArgs struct {
	From string         `json:"from" jsonschema:"The id of the source entity."`
	To   string         `json:"to" jsonschema:"The id of the target entity."`
	Type ConnectionType `json:"type" jsonschema:"The connection type: one-way or bi-directional."`
}

// NetworkResult is the structured output shared by read tools
type NetworkResult struct {
	Entities    []Entity     `json:"entities"`
	Connections []Connection `json:"connections"`
}

type CacheStatusArgs struct{}

// CacheStatusResult reports the asset cache worker state
type CacheStatusResult struct {
	CacheName string   `json:"cacheName"`
	State     string   `json:"state"`
	Assets    []string `json:"assets"`
	Cached    []string `json:"cached"`
}

type HealthArgs struct{}

type HealthResult struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Revision   string `json:"revision"`
	BuildDate  string `json:"buildDate"`
	CacheName  string `json:"cacheName"`
	CacheState string `json:"cacheState"`
}
