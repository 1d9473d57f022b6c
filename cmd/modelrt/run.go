package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"modelrt/internal/asset"
	"modelrt/internal/manager"
)

type runFlags struct {
	prompt      string
	maxTokens   int
	temperature float32
	topP        float32
	topK        int
	seed        int
	stop        string
	timeout     time.Duration
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run PATH",
		Short: "Load a model, generate once and print the tokens",
		Long: `Run loads the model, leases a session, streams one generation to stdout and
unloads again. Ctrl+C cancels the generation.

Example:
  modelrt run ~/models/tinyllama-1.1b-chat.Q4_K_M.gguf --prompt "Write a haiku"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "Prompt text (required)")
	cmd.Flags().IntVarP(&f.maxTokens, "max-tokens", "n", manager.DefaultMaxTokens, "Maximum tokens to generate")
	cmd.Flags().Float32Var(&f.temperature, "temperature", manager.DefaultTemperature, "Sampling temperature")
	cmd.Flags().Float32Var(&f.topP, "top-p", manager.DefaultTopP, "Nucleus sampling probability")
	cmd.Flags().IntVar(&f.topK, "top-k", manager.DefaultTopK, "Top-K sampling")
	cmd.Flags().IntVar(&f.seed, "seed", 0, "Random seed (0 = runtime chooses)")
	cmd.Flags().StringVar(&f.stop, "stop", "", "Comma-separated stop sequences")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Generation timeout (0 = none)")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func runOnce(ctx context.Context, out io.Writer, path string, f *runFlags) error {
	mc, err := managerConfig(cfg)
	if err != nil {
		return err
	}
	m := manager.NewWithConfig(mc)
	defer func() {
		if err := m.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("close runtime")
		}
	}()

	p, err := asset.Locate(path)
	if err != nil {
		return err
	}
	a, err := m.ResolveAsset(p)
	if err != nil {
		return err
	}
	if err := m.LoadRuntime(ctx, a); err != nil {
		return err
	}
	s, err := m.LeaseSession(ctx, 0)
	if err != nil {
		return err
	}
	defer m.ReleaseSession(s)

	ts, err := m.Generate(ctx, s, manager.Request{
		Prompt:      f.prompt,
		MaxTokens:   f.maxTokens,
		Temperature: f.temperature,
		TopP:        f.topP,
		TopK:        f.topK,
		Seed:        f.seed,
		Stop:        splitCSV(f.stop),
		Timeout:     f.timeout,
	})
	if err != nil {
		return err
	}
	defer ts.Close()
	start := time.Now()
	n := 0
	for {
		tok, err := ts.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		n++
		if _, err := io.WriteString(out, tok.Text); err != nil {
			return err
		}
	}
	fmt.Fprintln(out)
	log.Info().Int("tokens", n).Str("finish_reason", string(ts.FinishReason())).Dur("dur", time.Since(start)).Msg("generation done")
	return nil
}
