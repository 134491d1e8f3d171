package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/framekit/memoria/pkg/model"
)

func extractCommand() *cli.Command {
	var (
		cfg        config
		userID     string
		memType    string
		dialog     string
		input      string
		importance float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID owning the extracted memories",
			Sources:     cli.EnvVars("MEMORIA_USER"),
			Destination: &userID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "type",
			Aliases:     []string{"t"},
			Usage:       "Memory type to extract (factual, episodic, procedural, semantic, all)",
			Value:       "all",
			Destination: &memType,
		},
		&cli.StringFlag{
			Name:        "dialog",
			Usage:       "Dialog text to extract memories from",
			Destination: &dialog,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a file containing the dialog ('-' for stdin)",
			Destination: &input,
		},
		&cli.FloatFlag{
			Name:        "importance",
			Usage:       "Importance score assigned to extracted memories",
			Value:       0.5,
			Destination: &importance,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "extract",
		Usage: "Extract memories from a dialog using the configured LLM",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text, err := readDialog(dialog, input)
			if err != nil {
				return err
			}

			orch, db, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			targets, err := extractTargets(memType)
			if err != nil {
				return err
			}

			for _, t := range targets {
				var result *model.OperationResult
				switch t {
				case model.MemoryTypeFactual:
					result, err = orch.StoreFactualMemory(ctx, userID, text, importance)
				case model.MemoryTypeEpisodic:
					result, err = orch.StoreEpisodicMemory(ctx, userID, text, importance)
				case model.MemoryTypeProcedural:
					result, err = orch.StoreProceduralMemory(ctx, userID, text, importance)
				case model.MemoryTypeSemantic:
					result, err = orch.StoreSemanticMemory(ctx, userID, text, importance)
				}
				if err != nil {
					return goerr.Wrap(err, "extraction failed", goerr.V("type", t))
				}

				fmt.Fprintf(c.Root().Writer, "%s: stored %d", t, result.Count)
				if !result.Success {
					fmt.Fprintf(c.Root().Writer, " (%s)", result.Message)
				}
				fmt.Fprintln(c.Root().Writer)
				for _, id := range result.MemoryIDs {
					fmt.Fprintf(c.Root().Writer, "  %s\n", id)
				}
			}

			return nil
		},
	}
}

func readDialog(dialog, input string) (string, error) {
	if dialog != "" {
		return dialog, nil
	}

	switch input {
	case "":
		return "", goerr.New("either --dialog or --input is required")
	case "-":
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read dialog from stdin")
		}
		return string(raw), nil
	default:
		raw, err := os.ReadFile(input)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read dialog file", goerr.V("path", input))
		}
		return string(raw), nil
	}
}

func extractTargets(memType string) ([]model.MemoryType, error) {
	if memType == "all" {
		return []model.MemoryType{
			model.MemoryTypeFactual,
			model.MemoryTypeEpisodic,
			model.MemoryTypeProcedural,
			model.MemoryTypeSemantic,
		}, nil
	}

	t := model.MemoryType(memType)
	switch t {
	case model.MemoryTypeFactual, model.MemoryTypeEpisodic, model.MemoryTypeProcedural, model.MemoryTypeSemantic:
		return []model.MemoryType{t}, nil
	default:
		return nil, goerr.Wrap(model.ErrInvalidMemoryType, "extraction supports factual, episodic, procedural and semantic", goerr.V("type", memType))
	}
}
