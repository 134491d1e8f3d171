package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "memoria",
		Usage: "Multi-kind memory service for AI agents",
		Commands: []*cli.Command{
			extractCommand(),
			getCommand(),
			listCommand(),
			searchCommand(),
			statsCommand(),
			cleanupCommand(),
			endSessionCommand(),
			reconcileCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
