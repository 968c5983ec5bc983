/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"sync"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gofvm/comm"
	"github.com/notargets/gofvm/config"
	"github.com/notargets/gofvm/model_problems/Transport1D"
	"github.com/notargets/gofvm/solver"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scalar transport model problem across an in-process rank cluster",
	Long: `
Partitions a 1-D point set across the requested number of ranks, runs the
upwind transport solver to steady state with per-iteration halo exchange,
residual aggregation and CFL adaptation, and reports the convergence
history.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		inputFile, _ := cmd.Flags().GetString("inputFile")
		nPoints, _ := cmd.Flags().GetInt("points")
		nRanks, _ := cmd.Flags().GetInt("ranks")
		maxIter, _ := cmd.Flags().GetInt("maxIterations")
		verbose, _ := cmd.Flags().GetBool("verbose")
		prof, _ := cmd.Flags().GetBool("profile")
		if prof {
			defer profile.Start().Stop()
		}

		cfg := config.Defaults()
		if len(inputFile) != 0 {
			var data []byte
			if data, err = ioutil.ReadFile(inputFile); err != nil {
				panic(err)
			}
			if err = cfg.Parse(data); err != nil {
				panic(err)
			}
		}
		if nRanks > 0 {
			cfg.NRanks = nRanks
		}
		if maxIter > 0 {
			cfg.MaxIterations = maxIter
		}
		cfg.Verbose = verbose
		if err = cfg.Validate(); err != nil {
			panic(err)
		}
		cfg.Print()

		start := time.Now()
		converged, iters, err := RunTransport(cfg, nPoints)
		if err != nil {
			panic(err)
		}
		fmt.Printf("converged=%v after %d iterations, elapsed %v\n",
			converged, iters, time.Since(start))
	},
}

// RunTransport executes the transport case on cfg.NRanks goroutine
// ranks and reports the rank-0 driver's outcome
func RunTransport(cfg *config.Parameters, nPoints int) (converged bool, iters int, err error) {
	topos, err := Transport1D.BuildTopologies(nPoints, cfg.NRanks)
	if err != nil {
		return false, 0, err
	}
	trans := comm.NewCluster(cfg.NRanks)

	var (
		wg   sync.WaitGroup
		errs = make([]error, cfg.NRanks)
		conv = make([]bool, cfg.NRanks)
		its  = make([]int, cfg.NRanks)
	)
	for rank := 0; rank < cfg.NRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			c, err := Transport1D.New(trans[rank], topos[rank], cfg, 1.0, 1.0)
			if err != nil {
				errs[rank] = err
				return
			}
			d, err := solver.NewDriver(topos[rank], cfg, c)
			if err != nil {
				errs[rank] = err
				return
			}
			conv[rank], its[rank], errs[rank] = d.Run()
		}(rank)
	}
	wg.Wait()
	for rank, e := range errs {
		if e != nil {
			return false, 0, fmt.Errorf("rank %d: %w", rank, e)
		}
	}
	return conv[0], its[0], nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("inputFile", "I", "", "YAML input parameters file")
	runCmd.Flags().IntP("points", "k", 1000, "number of global mesh points")
	runCmd.Flags().IntP("ranks", "r", 0, "number of ranks (overrides input file)")
	runCmd.Flags().IntP("maxIterations", "n", 0, "iteration cap (overrides input file)")
	runCmd.Flags().BoolP("verbose", "v", false, "print the per-iteration convergence history")
	runCmd.Flags().Bool("profile", false, "write a CPU profile for this run")
}
