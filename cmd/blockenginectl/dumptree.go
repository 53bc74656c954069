package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockengine/blockengine/btree"
)

var dumpTreeCommand = &cobra.Command{
	Use:   "dump-tree <file>",
	Short: "Print every key/value pair in the file's tree in ascending order",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx, args[0], false)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		count := 0
		err = e.tree.Iterate(ctx, func(entry btree.Entry) bool {
			fmt.Printf("%d\t%d\n", entry.Key, entry.Value)
			count++
			return true
		})
		if err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%d entries\n", count)
		return nil
	},
}

func init() {
	RootCommand.AddCommand(dumpTreeCommand)
}
