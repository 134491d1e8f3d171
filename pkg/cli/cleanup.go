package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cleanupCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Restrict cleanup to one user (all users if empty)",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete expired working memories",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orch, db, err := cfg.newCoreOrchestrator()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := orch.CleanupExpiredWorkingMemories(ctx, userID)
			if err != nil {
				return goerr.Wrap(err, "cleanup failed")
			}

			fmt.Fprintf(c.Root().Writer, "deleted %d expired working memories\n", n)
			return nil
		},
	}
}
