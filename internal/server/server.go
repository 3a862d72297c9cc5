package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/people-network-go/internal/apptype"
	"github.com/ZanzyTHEbar/people-network-go/internal/assetcache"
	"github.com/ZanzyTHEbar/people-network-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/people-network-go/internal/database"
	"github.com/ZanzyTHEbar/people-network-go/internal/logging"
	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

const serverName = "people-network-go"

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server *mcp.Server
	db     *database.DBManager
	worker *assetcache.Worker
	log    *zap.Logger
}

// NewMCPServer creates a new MCP server. worker may be nil when offline
// caching is disabled.
func NewMCPServer(db *database.DBManager, worker *assetcache.Worker, logger *zap.Logger) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: buildinfo.Version,
	}, nil)

	mcpServer := &MCPServer{
		server: server,
		db:     db,
		worker: worker,
		log:    logging.OrNop(logger),
	}
	mcpServer.setupToolHandlers()
	return mcpServer
}

func schemaFor[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T]()
	if err != nil {
		var zero T
		panic(fmt.Sprintf("failed to create schema for %T: %v", zero, err))
	}
	return s
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	// Tools that return plain text do not need an output schema.
	mcp.AddTool(s.server, &mcp.Tool{
		Annotations:  &mcp.ToolAnnotations{Title: "Create Entities"},
		Name:         "create_entities",
		Title:        "Create Entities",
		Description:  "Create or update people and groups. Entities without an id get a generated one.",
		InputSchema:  schemaFor[apptype.CreateEntitiesArgs](),
		OutputSchema: schemaFor[apptype.NetworkResult](),
	}, s.handleCreateEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_connections",
		Title:       "Create Connections",
		Description: "Connect existing entities with one-way or bi-directional connections.",
		InputSchema: schemaFor[apptype.CreateConnectionsArgs](),
	}, s.handleCreateConnections)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "read_network",
		Title:        "Read Network",
		Description:  "Get recent entities and the connections between them.",
		InputSchema:  schemaFor[apptype.ReadNetworkArgs](),
		OutputSchema: schemaFor[apptype.NetworkResult](),
	}, s.handleReadNetwork)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "open_entities",
		Title:        "Open Entities",
		Description:  "Retrieve entities by id with optional connections.",
		InputSchema:  schemaFor[apptype.OpenEntitiesArgs](),
		OutputSchema: schemaFor[apptype.NetworkResult](),
	}, s.handleOpenEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "neighbors",
		Title:        "Neighbors",
		Description:  "Fetch 1-hop neighbors for given entities.",
		InputSchema:  schemaFor[apptype.NeighborsArgs](),
		OutputSchema: schemaFor[apptype.NetworkResult](),
	}, s.handleNeighbors)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_entity",
		Title:       "Delete Entity",
		Description: "Delete an entity and every connection touching it.",
		InputSchema: schemaFor[apptype.DeleteEntityArgs](),
	}, s.handleDeleteEntity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_connection",
		Title:       "Delete Connection",
		Description: "Delete a specific connection between entities.",
		InputSchema: schemaFor[apptype.DeleteConnectionArgs](),
	}, s.handleDeleteConnection)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "cache_status",
		Title:        "Cache Status",
		Description:  "Report the offline asset cache version, lifecycle state and cached keys.",
		InputSchema:  schemaFor[apptype.CacheStatusArgs](),
		OutputSchema: schemaFor[apptype.CacheStatusResult](),
	}, s.handleCacheStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server build and cache information.",
		InputSchema:  schemaFor[apptype.HealthArgs](),
		OutputSchema: schemaFor[apptype.HealthResult](),
	}, s.handleHealth)
}

func textResult[T any](text string, structured T) *mcp.CallToolResultFor[T] {
	return &mcp.CallToolResultFor[T]{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: structured,
	}
}

// handleCreateEntities handles the create_entities tool call
func (s *MCPServer) handleCreateEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.NetworkResult], error) {
	done := metrics.TimeTool("create_entities")
	var success bool
	defer func() { done(success) }()

	stored, err := s.db.CreateEntities(ctx, params.Arguments.Entities)
	if err != nil {
		return nil, fmt.Errorf("failed to create entities: %w", err)
	}
	success = true
	return textResult(
		fmt.Sprintf("Successfully processed %d entities", len(stored)),
		apptype.NetworkResult{Entities: stored, Connections: []apptype.Connection{}},
	), nil
}

// handleCreateConnections handles the create_connections tool call
func (s *MCPServer) handleCreateConnections(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateConnectionsArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("create_connections")
	var success bool
	defer func() { done(success) }()

	conns := params.Arguments.Connections
	if err := s.db.CreateConnections(ctx, conns); err != nil {
		return nil, fmt.Errorf("failed to create connections: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Created %d connections", len(conns))}},
	}, nil
}

// handleReadNetwork handles the read_network tool call
func (s *MCPServer) handleReadNetwork(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ReadNetworkArgs],
) (*mcp.CallToolResultFor[apptype.NetworkResult], error) {
	done := metrics.TimeTool("read_network")
	var success bool
	defer func() { done(success) }()

	network, err := s.db.ReadNetwork(ctx, params.Arguments.Limit)
	if err != nil {
		return nil, fmt.Errorf("read network failed: %w", err)
	}
	success = true
	return textResult("Network read successfully", apptype.NetworkResult(network)), nil
}

// handleOpenEntities handles the open_entities tool call
func (s *MCPServer) handleOpenEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.OpenEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.NetworkResult], error) {
	done := metrics.TimeTool("open_entities")
	var success bool
	defer func() { done(success) }()

	entities, err := s.db.GetEntities(ctx, params.Arguments.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to open entities: %w", err)
	}
	conns := []apptype.Connection{}
	if params.Arguments.IncludeConnections {
		conns, err = s.db.GetConnectionsForEntities(ctx, entities)
		if err != nil {
			return nil, fmt.Errorf("failed to get connections: %w", err)
		}
	}
	success = true
	return textResult(
		fmt.Sprintf("Opened %d entities", len(entities)),
		apptype.NetworkResult{Entities: entities, Connections: conns},
	), nil
}

// handleNeighbors returns 1-hop neighbors and connecting connections
func (s *MCPServer) handleNeighbors(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.NeighborsArgs],
) (*mcp.CallToolResultFor[apptype.NetworkResult], error) {
	done := metrics.TimeTool("neighbors")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	network, err := s.db.GetNeighbors(ctx, args.IDs, args.Direction, args.Limit)
	if err != nil {
		return nil, fmt.Errorf("neighbors failed: %w", err)
	}
	success = true
	return textResult("Neighbors fetched", apptype.NetworkResult(network)), nil
}

// handleDeleteEntity handles the delete_entity tool call
func (s *MCPServer) handleDeleteEntity(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DeleteEntityArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("delete_entity")
	var success bool
	defer func() { done(success) }()

	id := params.Arguments.ID
	if err := s.db.DeleteEntity(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete entity: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Successfully deleted entity %q", id)}},
	}, nil
}

// handleDeleteConnection handles the delete_connection tool call
func (s *MCPServer) handleDeleteConnection(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DeleteConnectionArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("delete_connection")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	if err := s.db.DeleteConnection(ctx, args.From, args.To, args.Type); err != nil {
		return nil, fmt.Errorf("failed to delete connection: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Deleted %s connection %s -> %s", args.Type, args.From, args.To)}},
	}, nil
}

// CacheStatus converts the worker status into the tool result shape.
func CacheStatus(ctx context.Context, worker *assetcache.Worker) (apptype.CacheStatusResult, error) {
	if worker == nil {
		return apptype.CacheStatusResult{State: "disabled", Assets: []string{}, Cached: []string{}}, nil
	}
	st, err := worker.Status(ctx)
	res := apptype.CacheStatusResult{
		CacheName: st.CacheName,
		State:     st.State.String(),
		Assets:    st.Assets,
		Cached:    st.Cached,
	}
	return res, err
}

func (s *MCPServer) handleCacheStatus(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CacheStatusArgs],
) (*mcp.CallToolResultFor[apptype.CacheStatusResult], error) {
	done := metrics.TimeTool("cache_status")
	var success bool
	defer func() { done(success) }()

	res, err := CacheStatus(ctx, s.worker)
	if err != nil {
		return nil, fmt.Errorf("cache status failed: %w", err)
	}
	success = true
	return textResult(res.State, res), nil
}

// handleHealth returns basic server health information
func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	defer func() { done(true) }()
	// observe current pool gauges
	inUse, idle := s.db.PoolStats()
	metrics.Default().ObservePoolStats(inUse, idle)
	res := apptype.HealthResult{
		Name:       serverName,
		Version:    buildinfo.Version,
		Revision:   buildinfo.Revision,
		BuildDate:  buildinfo.BuildDate,
		CacheState: "disabled",
	}
	if s.worker != nil {
		res.CacheName = s.worker.CacheName()
		res.CacheState = s.worker.State().String()
	}
	return textResult("ok", res), nil
}

// ReportPoolStats publishes pool gauges until ctx is done.
func (s *MCPServer) ReportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inUse, idle := s.db.PoolStats()
			metrics.Default().ObservePoolStats(inUse, idle)
		}
	}
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	s.log.Info("serving MCP over stdio")
	err := s.server.Run(ctx, mcp.NewStdioTransport())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler returns the SSE transport for mounting on an HTTP router.
func (s *MCPServer) Handler() http.Handler {
	return mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server })
}
