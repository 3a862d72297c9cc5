// Package network provides a library-first API over the people network
// store without the MCP transport.
package network

import (
	"context"

	"github.com/ZanzyTHEbar/people-network-go/internal/apptype"
	"github.com/ZanzyTHEbar/people-network-go/internal/database"
)

type (
	Entity         = apptype.Entity
	Connection     = apptype.Connection
	Network        = apptype.Network
	EntityType     = apptype.EntityType
	ConnectionType = apptype.ConnectionType
)

const (
	Person        = apptype.EntityTypePerson
	Group         = apptype.EntityTypeGroup
	OneWay        = apptype.ConnectionOneWay
	BiDirectional = apptype.ConnectionBiDirectional
)

// ErrEntityNotFound is returned when an entity id does not exist.
var ErrEntityNotFound = database.ErrEntityNotFound

// Service provides network operations backed by libSQL.
type Service struct {
	db *database.DBManager
}

// NewService constructs a Service with the provided config. A nil config
// reads the environment.
func NewService(cfg *Config) (*Service, error) {
	dm, err := database.NewDBManager(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &Service{db: dm}, nil
}

// Close releases resources.
func (s *Service) Close() error { return s.db.Close() }

// CreateEntities upserts entities and returns them with ids assigned.
func (s *Service) CreateEntities(ctx context.Context, ents []Entity) ([]Entity, error) {
	return s.db.CreateEntities(ctx, ents)
}

// CreateConnections inserts connections between existing entities.
func (s *Service) CreateConnections(ctx context.Context, conns []Connection) error {
	return s.db.CreateConnections(ctx, conns)
}

// OpenEntities fetches entities (and optionally connections) by id.
func (s *Service) OpenEntities(ctx context.Context, ids []string, includeConnections bool) (Network, error) {
	ents, err := s.db.GetEntities(ctx, ids)
	if err != nil {
		return Network{}, err
	}
	if !includeConnections {
		return Network{Entities: ents, Connections: []Connection{}}, nil
	}
	conns, err := s.db.GetConnectionsForEntities(ctx, ents)
	if err != nil {
		return Network{}, err
	}
	return Network{Entities: ents, Connections: conns}, nil
}

// ReadNetwork returns recent entities + connections with limit.
func (s *Service) ReadNetwork(ctx context.Context, limit int) (Network, error) {
	return s.db.ReadNetwork(ctx, limit)
}

func (s *Service) Neighbors(ctx context.Context, ids []string, direction string, limit int) (Network, error) {
	return s.db.GetNeighbors(ctx, ids, direction, limit)
}

func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	return s.db.DeleteEntity(ctx, id)
}

func (s *Service) DeleteConnection(ctx context.Context, from, to string, typ ConnectionType) error {
	return s.db.DeleteConnection(ctx, from, to, typ)
}
