package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/bench"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "List the built-in benchmark plants",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range bench.Names() {
			bm, err := bench.Lookup(name)
			if err != nil {
				return err
			}
			seeded := " "
			if bm.Seed != nil {
				seeded = "*"
			}
			fmt.Printf("%s %-18s n=%d m=%d\n", seeded, name, bm.Env.StateDim(), bm.Env.ActionDim())
		}
		fmt.Println("\n* ships a pre-verified controller entry")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(benchCmd)
}
