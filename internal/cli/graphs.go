package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/manager"
	"github.com/roach88/provenance/internal/provenance"
)

// withStores opens the configured stores for the duration of fn.
func withStores(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, st *stores) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStores(ctx, opts.Config())
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			opts.Logger().Warn("close storage failed", "error", err)
		}
	}()
	return fn(ctx, st)
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List graphs",
		Long: `List the graphs in local storage and, when enabled, remote storage.

Examples:
  provenance list
  provenance list --match "report-*"
  provenance list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, opts, func(ctx context.Context, st *stores) error {
				descs, err := st.manager.List(ctx)
				if err != nil {
					return fmt.Errorf("list graphs: %w", err)
				}
				descs, err = manager.Filter(descs, match)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --match", err)
				}
				if descs == nil {
					descs = []graph.Descriptor{}
				}
				return newPrinter(opts, cmd.OutOrStdout()).Print(descs, func(w io.Writer) {
					printDescriptors(w, descs)
				})
			})
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "only graphs whose name matches this glob (** allowed)")
	return cmd
}

func printDescriptors(w io.Writer, descs []graph.Descriptor) {
	if len(descs) == 0 {
		fmt.Fprintln(w, "No graphs.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTORAGE\tNODES\tEDGES\tCREATED")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			d.ID, d.Name, d.Storage, d.Size[0], d.Size[1], d.Timestamp().UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

// GraphInfo is the output of the show command.
type GraphInfo struct {
	graph.Descriptor
	States     int   `json:"states"`
	Actions    int   `json:"actions"`
	Objects    int   `json:"objects"`
	Slides     int   `json:"slides"`
	Current    int64 `json:"current"`
	LastAction int64 `json:"last_action"`
}

func graphInfo(desc graph.Descriptor, b graph.Backend) GraphInfo {
	info := GraphInfo{Descriptor: desc}
	for _, n := range b.Nodes() {
		switch n.Type() {
		case provenance.TypeState:
			info.States++
		case provenance.TypeAction:
			info.Actions++
		case provenance.TypeObject:
			info.Objects++
		case provenance.TypeSlide:
			info.Slides++
		}
	}
	nodes, edges := b.Size()
	info.Size = [2]int{nodes, edges}
	info.Current, info.LastAction = b.Current()
	return info
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, opts, func(ctx context.Context, st *stores) error {
				desc, b, err := st.open(ctx, args[0])
				if err != nil {
					return err
				}
				info := graphInfo(desc, b)
				return newPrinter(opts, cmd.OutOrStdout()).Print(info, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
					fmt.Fprintf(tw, "ID:\t%s\n", info.ID)
					fmt.Fprintf(tw, "Name:\t%s\n", info.Name)
					if info.Description != "" {
						fmt.Fprintf(tw, "Description:\t%s\n", info.Description)
					}
					fmt.Fprintf(tw, "Storage:\t%s\n", info.Storage)
					fmt.Fprintf(tw, "Creator:\t%s\n", info.Creator)
					fmt.Fprintf(tw, "Created:\t%s\n", info.Timestamp().UTC().Format(time.RFC3339))
					fmt.Fprintf(tw, "Nodes:\t%d (%d states, %d actions, %d objects, %d slides)\n",
						info.Size[0], info.States, info.Actions, info.Objects, info.Slides)
					fmt.Fprintf(tw, "Edges:\t%d\n", info.Size[1])
					fmt.Fprintf(tw, "Current state:\t#%d\n", info.Current)
					tw.Flush()
				})
			})
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a graph dump as JSON",
		Long: `Write the full JSON dump of a graph to stdout or to a file.

The dump can be loaded again with import.

Examples:
  provenance export 0192f3c4-... > graph.json
  provenance export 0192f3c4-... -o graph.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, opts, func(ctx context.Context, st *stores) error {
				desc, b, err := st.open(ctx, args[0])
				if err != nil {
					return err
				}
				d, err := b.Persist(ctx)
				if err != nil {
					return fmt.Errorf("persist %s: %w", desc.ID, err)
				}
				data, err := graph.EncodeDump(d)
				if err != nil {
					return fmt.Errorf("encode %s: %w", desc.ID, err)
				}

				if output == "" {
					_, err := cmd.OutOrStdout().Write(append(data, '\n'))
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return WrapExitError(ExitCommandError, "write dump", err)
				}
				result := map[string]string{"id": desc.ID, "path": output}
				return newPrinter(opts, cmd.OutOrStdout()).Print(result, func(w io.Writer) {
					fmt.Fprintf(w, "Exported %s to %s\n", desc.ID, output)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	var (
		name        string
		description string
		toRemote    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create a graph from a JSON dump",
		Long: `Create a new graph from a dump written by export.

The graph gets a fresh id. Its name defaults to the file name.

Examples:
  provenance import graph.json
  provenance import graph.json --name "Quarterly report" --remote`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return WrapExitError(ExitCommandError, "read dump", err)
			}
			d, err := graph.DecodeDump(data)
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("decode %s", path), err)
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			return withStores(cmd, opts, func(ctx context.Context, st *stores) error {
				if toRemote && !st.remote {
					return NewExitError(ExitCommandError, "--remote needs remote storage enabled in the config")
				}
				desc, _, err := st.manager.Import(ctx, d, graph.Descriptor{
					Name:        name,
					Description: description,
					Local:       !toRemote,
				})
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				opts.Logger().Info("graph imported", "id", desc.ID, "storage", desc.Storage)
				return newPrinter(opts, cmd.OutOrStdout()).Print(desc, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %s as %s (%s)\n", path, desc.ID, desc.Storage)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "graph name")
	cmd.Flags().StringVar(&description, "description", "", "graph description")
	cmd.Flags().BoolVar(&toRemote, "remote", false, "import into remote storage")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, opts, func(ctx context.Context, st *stores) error {
				desc, err := st.find(ctx, args[0])
				if err != nil {
					return err
				}
				if err := st.manager.Delete(ctx, desc); err != nil {
					return fmt.Errorf("delete %s: %w", desc.ID, err)
				}
				opts.Logger().Info("graph deleted", "id", desc.ID)
				return newPrinter(opts, cmd.OutOrStdout()).Print(desc, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted %s\n", desc.ID)
				})
			})
		},
	}
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <id>",
		Short: "Copy a local graph to remote storage",
		Long: `Copy a local graph into remote storage under a new id.

The local graph is kept. Remote storage must be enabled in the config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, opts, func(ctx context.Context, st *stores) error {
				if !st.remote {
					return NewExitError(ExitCommandError, "migrate needs remote storage enabled in the config")
				}
				desc, b, err := st.open(ctx, args[0])
				if err != nil {
					return err
				}
				if !desc.Local {
					return NewExitError(ExitCommandError, fmt.Sprintf("graph %s is already remote", desc.ID))
				}

				g, err := provenance.New(ctx, b, provenance.NewRegistry(), provenance.WithDescriptor(desc))
				if err != nil {
					return fmt.Errorf("open graph %s: %w", desc.ID, err)
				}
				runCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				g.Start(runCtx)
				defer g.Close()

				migrated, err := g.Migrate(ctx, st.manager)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).Print(migrated, func(w io.Writer) {
					fmt.Fprintf(w, "Migrated %s to %s (%s)\n", desc.ID, migrated.ID, migrated.Storage)
				})
			})
		},
	}
}
