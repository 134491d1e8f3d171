package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/framekit/memoria/pkg/model"
)

func statsCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to count memories for",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "stats",
		Usage: "Show per-type memory counts for a user",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orch, db, err := cfg.newCoreOrchestrator()
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := orch.GetMemoryStatistics(ctx, userID)
			if err != nil {
				return goerr.Wrap(err, "failed to collect statistics")
			}

			fmt.Fprintf(c.Root().Writer, "total\t%d\n", stats.TotalMemories)
			for _, t := range model.AllMemoryTypes {
				fmt.Fprintf(c.Root().Writer, "%s\t%d\n", t, stats.ByType[t])
			}
			return nil
		},
	}
}
