package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/backend"
	"github.com/quiver-ml/quiver/internal/manager"
	"github.com/quiver-ml/quiver/tensor"
)

func newBenchCommand() *cobra.Command {
	var (
		backendName string
		modelPath   string
		iterations  int
		inputShape  string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark local inference throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := backend.ParseKind(backendName)
			if err != nil {
				return err
			}

			reg := backend.NewRegistry()
			if err := backend.Bootstrap(reg, nil); err != nil {
				return err
			}

			mgr, err := manager.New(reg, manager.WithEngineConfig(backend.Config{
				Options: map[string]string{"input_shape": inputShape, "mode": "echo"},
				Logger:  zap.NewNop(),
			}))
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close() }()

			ctx := cmd.Context()
			id, err := mgr.LoadModel(ctx, modelPath, "bench", kind)
			if err != nil {
				return err
			}

			model, err := mgr.Get(id)
			if err != nil {
				return err
			}
			info, err := model.Handle().InputInfo(0)
			if err != nil {
				return err
			}
			input, err := tensor.New(info.Name, info.DType, info.Shape, info.Layout)
			if err != nil {
				return err
			}

			// Warmup.
			if _, err := mgr.InferSingle(ctx, id, input); err != nil {
				return err
			}

			start := time.Now()
			for i := 0; i < iterations; i++ {
				if _, err := mgr.InferSingle(ctx, id, input); err != nil {
					return fmt.Errorf("iteration %d: %w", i, err)
				}
			}
			elapsed := time.Since(start)

			per := elapsed / time.Duration(iterations)
			fmt.Fprintf(cmd.OutOrStdout(),
				"model=%s backend=%s iterations=%d total=%s per-call=%s throughput=%.1f/s\n",
				modelPath, kind, iterations, elapsed.Round(time.Millisecond), per,
				float64(iterations)/elapsed.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "stub", "backend kind (stub, onnx, webgpu, npu)")
	cmd.Flags().StringVar(&modelPath, "model", ":memory:", "model path")
	cmd.Flags().IntVar(&iterations, "n", 1000, "iteration count")
	cmd.Flags().StringVar(&inputShape, "input-shape", "1x8", "synthetic input shape")
	return cmd
}
