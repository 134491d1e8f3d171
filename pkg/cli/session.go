package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func endSessionCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID owning the session",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "end-session",
		Usage:     "Deactivate all session memories for a session",
		ArgsUsage: "<session-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("session-id argument is required")
			}
			sessionID := c.Args().First()

			orch, db, err := cfg.newCoreOrchestrator()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := orch.EndSession(ctx, userID, sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to end session", goerr.V("session_id", sessionID))
			}

			fmt.Fprintf(c.Root().Writer, "deactivated %d session memories\n", n)
			return nil
		},
	}
}
