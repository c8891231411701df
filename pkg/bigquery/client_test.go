package bigquery

import (
	"context"
	"testing"

	"github.com/angelmondragon/gallotrack-backend/pkg/config"
)

func TestConfiguredTables(t *testing.T) {
	tables := configuredTables(config.BigQueryConfig{BillingEventsTable: " billing_events "})
	if len(tables) != 1 || tables[0] != "billing_events" {
		t.Fatalf("unexpected tables %v", tables)
	}

	if tables := configuredTables(config.BigQueryConfig{}); len(tables) != 0 {
		t.Fatalf("expected no tables, got %v", tables)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d", BillingEventsTable: "t"}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{BillingEventsTable: "t"}, nil); err != errDatasetRequired {
		t.Fatalf("expected dataset error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil); err != errTableNameRequired {
		t.Fatalf("expected table error, got %v", err)
	}
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	opts := clientOptions(config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	})
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
	if err := c.InsertRows(context.Background(), "t", []any{1}); err != errClientNotInitialized {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Ping(context.Background()); err != errClientNotInitialized {
		t.Fatalf("expected not initialized, got %v", err)
	}
}
