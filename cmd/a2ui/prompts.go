package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wilhg/a2ui/pkg/narrate"
)

func newPromptsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect narration prompts",
	}
	var file string
	diff := &cobra.Command{
		Use:   "diff",
		Short: "Show how an override file changes the built-in prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				cfg, _, err := o.load(os.Stderr)
				if err != nil {
					return err
				}
				file = cfg.PromptsFile
			}
			if file == "" {
				return errors.New("--file or prompts_file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			prompts := narrate.DefaultPrompts()
			if _, err := prompts.LoadYAML(data); err != nil {
				return err
			}
			overrides := prompts.Overrides()
			names := make([]string, 0, len(overrides))
			for name := range overrides {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "no changes")
				return nil
			}
			for _, name := range names {
				fmt.Fprintf(out, "== %s\n%s\n", name, overrides[name])
			}
			return nil
		},
	}
	diff.Flags().StringVar(&file, "file", "", "prompt override file (yaml)")
	cmd.AddCommand(diff)
	return cmd
}
