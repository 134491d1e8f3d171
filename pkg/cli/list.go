package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/framekit/memoria/pkg/model"
)

func listCommand() *cli.Command {
	var (
		cfg     config
		userID  string
		memType string
		limit   int64
		offset  int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to list memories for",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Restrict to one memory type (all types if empty)",
			Destination: &memType,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of memories to list",
			Value:       100,
			Destination: &limit,
		},
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Offset for pagination",
			Value:       0,
			Destination: &offset,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List memories, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			orch, db, err := cfg.newCoreOrchestrator()
			if err != nil {
				return err
			}
			defer db.Close()

			params := &model.ListParams{
				UserID: userID,
				Limit:  int(limit),
				Offset: int(offset),
			}
			if memType != "" {
				t := model.MemoryType(memType)
				params.MemoryType = &t
			}

			memories, err := orch.ListMemories(ctx, params)
			if err != nil {
				return goerr.Wrap(err, "failed to list memories")
			}

			for _, m := range memories {
				base := m.Base()
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\t%s\n",
					base.ID, base.MemoryType, base.CreatedAt.Format("2006-01-02 15:04:05"), oneLine(base.Content, 80))
			}
			return nil
		},
	}
}

func oneLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
