package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

const defaultChangelog = "CHANGELOG.md"

// chglogArgs builds the git-chglog argument list. An empty output falls back
// to CHANGELOG.md.
func chglogArgs(next, output, tag string) []string {
	if output == "" {
		output = defaultChangelog
	}
	args := []string{}
	if next != "" {
		args = append(args, "--next-tag", next)
	}
	args = append(args, "--output", output)
	if tag != "" {
		args = append(args, tag)
	}
	return args
}

func ChangelogCmd() *cobra.Command {
	var next, output, tag string
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate or update the driver changelog from git history",
		Long: `Generate CHANGELOG.md with git-chglog from conventional commits.

Scopes used in this repository: air, environment, monitor, config, cli.

Examples:
  dev changelog
  dev changelog --next v0.3.0
  dev changelog --tag v0.2.0 --output CHANGES.md`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := exec.LookPath("git-chglog"); err != nil {
				slog.Error("git-chglog not found in PATH, install it with: go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}
			args := chglogArgs(next, output, tag)
			slog.Info("running git-chglog", "args", args)
			run := exec.CommandContext(cmd.Context(), "git-chglog", args...)
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("failed to generate changelog: %w", err)
			}
			slog.Info("changelog generated", "output", cmd.Flag("output").Value.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&next, "next", "", "next version tag (e.g. v0.3.0)")
	cmd.Flags().StringVar(&output, "output", defaultChangelog, "output file path")
	cmd.Flags().StringVar(&tag, "tag", "", "generate changelog for a specific tag")
	return cmd
}
