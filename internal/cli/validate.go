package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lumen/internal/engine"
	"github.com/roach88/lumen/internal/graph"
	"github.com/roach88/lumen/internal/schema"
)

// ValidationResult holds validation results for a graph document.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <graph.json>",
		Short: "Validate a graph document without running it",
		Long: `Validate a graph document against the schema and the node catalog.

Schema violations and edges referencing missing nodes are errors.
Unknown node types are warnings: the engine skips them at run time, so
a document authored against a newer catalog still validates.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, graphPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(graphPath)
	if err != nil {
		if outErr := formatter.Error("E_READ", err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, "cannot read graph document")
	}

	result := validateGraphDocument(data)

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printValidationText(formatter, graphPath, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "graph document invalid")
	}
	return nil
}

// validateGraphDocument runs the schema check, then structural checks
// the schema cannot express (edge endpoints, duplicate ids, catalog
// membership).
func validateGraphDocument(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	if err := schema.ValidateGraph(data); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	g, err := graph.Parse(data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	known := make(map[string]bool)
	for _, def := range engine.NodeTypes() {
		known[def.ID] = true
	}

	nodes := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if nodes[n.ID] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		nodes[n.ID] = true

		if !known[n.TypeID] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("node %q has unknown type %q; it will be skipped at run time", n.ID, n.TypeID))
		}
	}

	for _, e := range g.Edges {
		if !nodes[e.FromNode] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("edge %q references unknown node %q", e.ID, e.FromNode))
		}
		if !nodes[e.ToNode] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("edge %q references unknown node %q", e.ID, e.ToNode))
		}
	}

	return result
}

func printValidationText(formatter *OutputFormatter, path string, result ValidationResult) {
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "warning: %s\n", w)
	}
	if result.Valid {
		fmt.Fprintf(formatter.Writer, "%s: valid\n", path)
		return
	}
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "error: %s\n", e)
	}
	fmt.Fprintf(formatter.Writer, "%s: invalid\n", path)
}
