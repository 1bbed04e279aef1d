// Command schema emits a JSON schema for the wire contract (envelope plus
// command DTOs) so external clients can validate traffic without a Go
// toolchain.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	servernet "engain/server/internal/net"
	"engain/server/internal/protocol"
)

// wireContract groups every type that crosses the wire into one document.
type wireContract struct {
	Envelope protocol.Envelope         `json:"envelope"`
	Command  servernet.CommandRequest  `json:"command"`
	Ack      servernet.AckResponse     `json:"ack"`
	Error    servernet.ErrorResponse   `json:"error"`
	Damage   servernet.DamageRequest   `json:"damage"`
	Take     servernet.TakeRequest     `json:"take"`
	Activate servernet.ActivateRequest `json:"activate"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireContract))
	schema.Title = "EngAIn Sync Wire Contract"
	schema.Description = fmt.Sprintf("Validates %s protocol traffic, version %s", protocol.Name, protocol.Version)
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
