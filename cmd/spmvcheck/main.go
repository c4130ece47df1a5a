package main

import (
	goflag "flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/notargets/gospmv/config"
	"github.com/notargets/gospmv/device"
	"github.com/notargets/gospmv/matgen"
	"github.com/notargets/gospmv/spmat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

type checkFlags struct {
	configPath string
	devices    int
	matrix     string
	size       int
	band       int
	alpha      float64
	repeat     int
	single     bool
	tolerance  float64
}

func main() {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "spmvcheck",
		Short: "Multiply a generated sparse matrix on the configured devices and compare with the host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "YAML device configuration, default is --devices Serial devices")
	flags.IntVar(&f.devices, "devices", 2, "number of Serial devices when no configuration is given")
	flags.StringVar(&f.matrix, "matrix", "poisson", "generated matrix: poisson, banded or ghost")
	flags.IntVar(&f.size, "size", 32, "grid edge for poisson, rows for banded and ghost")
	flags.IntVar(&f.band, "band", 4, "half bandwidth of the banded matrix")
	flags.Float64Var(&f.alpha, "alpha", 1, "scale of the product")
	flags.IntVar(&f.repeat, "repeat", 10, "number of timed multiplies")
	flags.BoolVar(&f.single, "float32", false, "run in single precision")
	flags.Float64Var(&f.tolerance, "tol", 0, "maximum accepted error, 0 picks one for the precision")

	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	pflag.CommandLine.AddGoFlagSet(klogFlags)
	cmd.Flags().AddFlagSet(pflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

func generate(f checkFlags) (*matgen.CSR, error) {
	switch f.matrix {
	case "poisson":
		return matgen.Poisson3D(f.size, f.size, f.size), nil
	case "banded":
		return matgen.Banded(f.size, f.band), nil
	case "ghost":
		return matgen.GhostDense(f.size), nil
	}
	return nil, errors.Errorf("unknown matrix %q", f.matrix)
}

func run(f checkFlags) error {
	cfg := config.Default(f.devices)
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return err
		}
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	queues, closeAll, err := cfg.Open()
	if err != nil {
		return err
	}
	defer closeAll()

	a, err := generate(f)
	if err != nil {
		return err
	}
	fmt.Printf("Matrix: %s on %d devices\n", a, len(queues))

	x := make([]float64, a.Cols)
	for i := range x {
		x[i] = math.Sin(float64(i) * 0.01)
	}
	want := a.MulVec(x, f.alpha)

	var got []float64
	if f.single {
		got, err = multiply(queues, a, toFloat32(a.Val), toFloat32(x), float32(f.alpha), f.repeat, opts)
	} else {
		got, err = multiply(queues, a, a.Val, x, f.alpha, f.repeat, opts)
	}
	if err != nil {
		return err
	}

	diff := make([]float64, len(got))
	floats.SubTo(diff, got, want)
	maxErr, scale := 0.0, 1.0
	if len(diff) > 0 {
		maxErr = floats.Norm(diff, math.Inf(1))
		scale = math.Max(1, floats.Norm(want, math.Inf(1)))
	}
	tol := tolerance(f)
	fmt.Printf("Max error: %.3e (relative %.3e, tolerance %.1e)\n", maxErr, maxErr/scale, tol)
	if maxErr/scale > tol {
		return errors.Errorf("error %.3e exceeds tolerance %.1e", maxErr/scale, tol)
	}
	return nil
}

// tolerance is the accepted relative error, picked by precision unless set
func tolerance(f checkFlags) float64 {
	switch {
	case f.tolerance > 0:
		return f.tolerance
	case f.single:
		return 1e-5
	}
	return 1e-12
}

func multiply[T spmat.Real](queues []*device.Queue, a *matgen.CSR, val, x []T, alpha T, repeat int, opts []spmat.Option) ([]float64, error) {
	mtx, err := spmat.New(queues, a.Rows, a.Cols, a.Row, a.Col, val, opts...)
	if err != nil {
		return nil, err
	}
	defer mtx.Free()
	for d := range queues {
		fmt.Printf("  device %d: rows %d, ghosts %d, layout %s\n",
			d, mtx.RowPartition().Len(d), mtx.Ghosts(d), mtx.Layout(d))
	}

	xv, err := spmat.NewVectorFrom(queues, x)
	if err != nil {
		return nil, err
	}
	defer xv.Free()
	yv, err := spmat.NewVector[T](queues, a.Rows)
	if err != nil {
		return nil, err
	}
	defer yv.Free()

	start := time.Now()
	for i := 0; i < max(repeat, 1); i++ {
		if err = mtx.Mul(xv, yv, alpha, false); err != nil {
			return nil, err
		}
	}
	y, err := yv.Read()
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	perCall := elapsed / time.Duration(max(repeat, 1))
	gflops := 2 * float64(a.NonZeros()) / perCall.Seconds() / 1e9
	fmt.Printf("Multiply: %v per call, %.3f GFLOP/s\n", perCall, gflops)

	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out, nil
}

func toFloat32(s []float64) []float32 {
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = float32(v)
	}
	return out
}
