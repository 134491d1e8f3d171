package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/framekit/memoria/pkg/model"
)

func searchCommand() *cli.Command {
	var (
		cfg     config
		userID  string
		memType string
		query   string
		limit   int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to search within",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Memory type to search (factual, episodic, procedural, semantic)",
			Value:       "factual",
			Destination: &memType,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Natural language query",
			Destination: &query,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results",
			Value:       10,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search memories by vector similarity",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orch, db, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			memories, err := orch.SearchMemories(ctx, userID, model.MemoryType(memType), query, int(limit))
			if err != nil {
				return goerr.Wrap(err, "search failed")
			}

			for _, m := range memories {
				base := m.Base()
				fmt.Fprintf(c.Root().Writer, "%s\t%s\n", base.ID, oneLine(base.Content, 100))
			}
			return nil
		},
	}
}
