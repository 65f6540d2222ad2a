package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/born-ml/tensorexec/backend/cpu"
	"github.com/born-ml/tensorexec/engine"
	"github.com/born-ml/tensorexec/tensor"
)

type benchOptions struct {
	size    int
	iters   int
	metrics bool
}

func newBenchCmd(load func() (engine.Config, error)) *cobra.Command {
	var opts benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time matmul, reduce and broadcast add on the CPU backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.size, "size", "n", 256, "matrix dimension")
	cmd.Flags().IntVar(&opts.iters, "iters", 10, "iterations per operator")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print the engine metrics afterwards")
	return cmd
}

func runBench(ctx context.Context, w io.Writer, cfg engine.Config, opts benchOptions) (err error) {
	if opts.size <= 0 || opts.iters <= 0 {
		return errors.New("size and iters must be positive")
	}
	e, err := engine.New(cfg, engine.WithLogger(newLogger(cfg)))
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := e.Shutdown(context.Background()); err == nil {
			err = shutdownErr
		}
	}()
	backend := cpu.New(e)

	n := opts.size
	data := make([]float32, n*n)
	for i := range data {
		data[i] = float32(i%17) / 17
	}
	a := tensor.FromFloat32(tensor.Shape{n, n}, data)
	b := tensor.FromFloat32(tensor.Shape{n}, data[:n])
	defer a.Release()
	defer b.Release()

	ops := []struct {
		name string
		run  func() (*tensor.Tensor, error)
	}{
		{"matmul", func() (*tensor.Tensor, error) { return backend.MatMul(a, a) }},
		{"reducesum", func() (*tensor.Tensor, error) { return backend.Reduce(tensor.ReduceSum, a, []int{1}, false) }},
		{"add", func() (*tensor.Tensor, error) { return backend.Binary(tensor.Add, a, b) }},
	}

	fmt.Fprintf(w, "engine %s, %d workers, gemm %s, %dx%d float32\n",
		e.ID[:8], e.Sched.Config().NumWorkers, e.Config.BLAS, n, n)
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		for range opts.iters {
			out, err := op.run()
			if err != nil {
				return errors.Wrap(err, op.name)
			}
			if _, err := tensor.Float32Values(out); err != nil {
				return errors.Wrap(err, op.name)
			}
			out.Release()
		}
		elapsed := time.Since(start) / time.Duration(opts.iters)
		fmt.Fprintf(w, "%-10s %12s/op\n", op.name, elapsed)
	}

	if opts.metrics {
		return writeMetrics(w, e)
	}
	return nil
}

func writeMetrics(w io.Writer, e *engine.Context) error {
	g := e.Gatherer()
	if g == nil {
		return nil
	}
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	fmt.Fprintln(w)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels(m.GetLabel()), v)
		}
	}
	return nil
}

func labels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	s := "{"
	for i, p := range pairs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return s + "}"
}
