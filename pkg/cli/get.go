package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/framekit/memoria/pkg/model"
)

func getCommand() *cli.Command {
	var (
		cfg     config
		userID  string
		memType string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID for access tracking (skipped if empty)",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Memory type of the record",
			Destination: &memType,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "get",
		Usage:     "Show a single memory by ID",
		ArgsUsage: "<memory-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("memory-id argument is required")
			}

			orch, db, err := cfg.newCoreOrchestrator()
			if err != nil {
				return err
			}
			defer db.Close()

			m, err := orch.GetMemory(ctx, model.MemoryID(c.Args().First()), model.MemoryType(memType), userID)
			if err != nil {
				return goerr.Wrap(err, "failed to get memory")
			}
			if m == nil {
				fmt.Fprintln(c.Root().Writer, "not found")
				return nil
			}

			raw, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to encode memory")
			}
			fmt.Fprintln(c.Root().Writer, string(raw))
			return nil
		},
	}
}
