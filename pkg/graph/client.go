// Package graph records upload lineage in Neo4j/Memgraph over Bolt
package graph

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (c Config) URI() string {
	return "bolt://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client runs lineage statements against the graph. Memgraph accepts an empty
// username, so auth is only sent when one is configured.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.URI(), err)
	}
	logger.WithField("uri", cfg.URI()).Info("Graph driver created")
	return &Client{driver: driver, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Write applies statements in order inside one write transaction, so a
// decision's nodes and edges land together or not at all.
func (c *Client) Write(ctx context.Context, statements ...Statement) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Write")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for i, stmt := range statements {
			result, err := tx.Run(ctx, stmt.Cypher, stmt.Params)
			if err == nil {
				_, err = result.Consume(ctx)
			}
			if err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

// Read runs one query on a reader and returns each record keyed by column
func (c *Client) Read(ctx context.Context, stmt Statement) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Read")
	defer span.End()

	result, err := neo4j.ExecuteQuery(ctx, c.driver, stmt.Cypher, stmt.Params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	rows := make([]map[string]any, len(result.Records))
	for i, rec := range result.Records {
		rows[i] = rec.AsMap()
	}
	return rows, nil
}
