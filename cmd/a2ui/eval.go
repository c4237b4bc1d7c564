package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wilhg/a2ui/pkg/config"
	"github.com/wilhg/a2ui/pkg/eval"
)

func newEvalCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate narration fixtures and replay captured sessions",
	}

	var minScore float64
	narration := &cobra.Command{
		Use:   "narration DIR",
		Short: "Check the configured narrator against the fixtures in DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := o.load(os.Stderr)
			if err != nil {
				return err
			}
			n, err := newNarrator(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			rep, err := eval.EvaluateNarration(cmd.Context(), n, os.DirFS(args[0]), ".")
			if err != nil {
				return err
			}
			if err := writeJSON(cmd, rep); err != nil {
				return err
			}
			if rep.Score < minScore {
				return fmt.Errorf("score %.2f below %.2f", rep.Score, minScore)
			}
			return nil
		},
	}
	narration.Flags().Float64Var(&minScore, "min-score", 1, "fail below this score")

	replay := &cobra.Command{
		Use:   "replay FILE",
		Short: "Replay a captured session against a fresh in-memory agent",
		Long: `replay runs the init request and actions of a capture (json or yaml)
against an in-memory store seeded from provider_seed, and prints the final
step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := o.load(os.Stderr)
			if err != nil {
				return err
			}
			capture, err := readCapture(args[0])
			if err != nil {
				return err
			}
			cfg.DatabaseURL = config.MemoryDatabase
			cfg.Broker = config.BrokerMemory
			a, err := buildApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			res, err := eval.Replay(cmd.Context(), a.agent, capture)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"surfaceId":    res.SurfaceID,
				"version":      res.Version,
				"step":         res.Surface.Step(),
				"textResponse": res.TextResponse,
			})
		},
	}

	cmd.AddCommand(narration, replay)
	return cmd
}

func readCapture(path string) (eval.Capture, error) {
	var c eval.Capture
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		// Re-encode so the json field names apply to yaml captures too.
		var doc any
		if err = yaml.Unmarshal(data, &doc); err == nil {
			data, err = json.Marshal(doc)
		}
	}
	if err == nil {
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode capture %s: %w", path, err)
	}
	return c, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
