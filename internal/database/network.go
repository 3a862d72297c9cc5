package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/people-network-go/internal/apptype"
	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

// ReadNetwork returns up to limit entities and the connections touching them
func (dm *DBManager) ReadNetwork(ctx context.Context, limit int) (apptype.Network, error) {
	entities, err := dm.ListEntities(ctx, limit)
	if err != nil {
		return apptype.Network{}, fmt.Errorf("failed to list entities: %w", err)
	}
	connections, err := dm.GetConnectionsForEntities(ctx, entities)
	if err != nil {
		return apptype.Network{}, fmt.Errorf("failed to get connections: %w", err)
	}
	return apptype.Network{Entities: entities, Connections: connections}, nil
}

// GetNeighbors returns 1-hop neighbors for the given entity ids.
// direction: "out" (reachable from ids), "in" (can reach ids), or "both".
// Bi-directional connections count in both directions.
func (dm *DBManager) GetNeighbors(ctx context.Context, ids []string, direction string, limit int) (apptype.Network, error) {
	done := metrics.TimeOp("db_get_neighbors")
	success := false
	defer func() { done(success) }()
	if len(ids) == 0 {
		return apptype.Network{Entities: []apptype.Entity{}, Connections: []apptype.Connection{}}, nil
	}
	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "":
		direction = "both"
	case "out", "in", "both":
	default:
		return apptype.Network{}, fmt.Errorf("invalid direction %q: expected out, in or both", direction)
	}

	seeds := make([]apptype.Entity, len(ids))
	for i, id := range ids {
		seeds[i] = apptype.Entity{ID: id}
	}
	touching, err := dm.GetConnectionsForEntities(ctx, seeds)
	if err != nil {
		return apptype.Network{}, err
	}

	inSeed := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSeed[id] = true
	}
	entitySet := make(map[string]struct{}, len(ids))
	order := make([]string, 0, len(ids))
	add := func(id string) {
		if _, ok := entitySet[id]; !ok {
			entitySet[id] = struct{}{}
			order = append(order, id)
		}
	}
	for _, id := range ids {
		add(id)
	}

	conns := make([]apptype.Connection, 0)
	for _, c := range touching {
		if limit > 0 && len(conns) >= limit {
			break
		}
		if !followsDirection(c, inSeed, direction) {
			continue
		}
		conns = append(conns, c)
		add(c.From)
		add(c.To)
	}

	entities, err := dm.GetEntities(ctx, order)
	if err != nil {
		return apptype.Network{}, err
	}
	success = true
	return apptype.Network{Entities: entities, Connections: conns}, nil
}

func followsDirection(c apptype.Connection, seeds map[string]bool, direction string) bool {
	switch direction {
	case "out":
		return (seeds[c.From] && c.Reaches(c.From, c.To)) || (seeds[c.To] && c.Reaches(c.To, c.From))
	case "in":
		return (seeds[c.To] && c.Reaches(c.From, c.To)) || (seeds[c.From] && c.Reaches(c.To, c.From))
	default:
		return seeds[c.From] || seeds[c.To]
	}
}
