package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func reconcileCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)

	return &cli.Command{
		Name:  "reconcile",
		Usage: "Report stored memories missing their vector entries",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orch, db, err := cfg.newCoreOrchestrator()
			if err != nil {
				return err
			}
			defer db.Close()

			missing, err := orch.ReconcileVectors(ctx)
			if err != nil {
				return goerr.Wrap(err, "reconciliation failed")
			}

			total := 0
			for t, ids := range missing {
				total += len(ids)
				for _, id := range ids {
					fmt.Fprintf(c.Root().Writer, "%s\t%s\n", t, id)
				}
			}
			fmt.Fprintf(c.Root().Writer, "%d memories missing vectors\n", total)
			return nil
		},
	}
}
