package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/lumen/internal/engine"
	"github.com/roach88/lumen/internal/graph"
)

// NewNodesCommand creates the nodes command.
func NewNodesCommand(rootOpts *RootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the node type catalog",
		Long: `List every node type the engine can execute, with its ports and
parameters. Hosts use the JSON form to build editor palettes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodes(rootOpts, category, cmd)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only show node types in this category")

	return cmd
}

func runNodes(opts *RootOptions, category string, cmd *cobra.Command) error {
	defs := engine.NodeTypes()
	if category != "" {
		filtered := defs[:0]
		for _, def := range defs {
			if strings.EqualFold(def.Category, category) {
				filtered = append(filtered, def)
			}
		}
		defs = filtered
		if len(defs) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("no node types in category %q", category))
		}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return formatter.Success(defs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tINPUTS\tOUTPUTS\tPARAMS")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			def.ID, def.Category,
			portList(def.Inputs), portList(def.Outputs), len(def.Params))
	}
	return w.Flush()
}

func portList(ports []graph.PortDef) string {
	if len(ports) == 0 {
		return "-"
	}
	ids := make([]string, len(ports))
	for i, p := range ports {
		ids[i] = p.ID
	}
	return strings.Join(ids, ",")
}
