package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vosbek/codeatlas/internal/graph"
)

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Print entity counts for a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, _, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := st.GetSnapshot(args[0])
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("no snapshot %q", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "repository: %s\n", snap.Repository)
			fmt.Fprintf(out, "revision:   %s\n", snap.Revision)
			fmt.Fprintf(out, "created:    %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "files:      %d analyzed, %d failed\n", snap.Stats.FilesTotal, snap.Stats.FilesFailed)

			kinds := []graph.EntityKind{
				graph.KindModule, graph.KindDependency, graph.KindType,
				graph.KindMethod, graph.KindField, graph.KindArtifact, graph.KindRule,
			}
			for _, k := range kinds {
				entities, err := st.EntitiesByKind(snap.ID, k)
				if err != nil {
					return err
				}
				if len(entities) > 0 {
					fmt.Fprintf(out, "%-20s %d\n", string(k), len(entities))
				}
			}
			fmt.Fprintf(out, "relationships:       %d\n", snap.Stats.Relationships)
			return nil
		},
	}
}
