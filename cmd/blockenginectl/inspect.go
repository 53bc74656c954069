package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockengine/blockengine/btree"
)

var inspectCommand = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print basic facts about a blockengine storage file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx, args[0], false)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		fmt.Printf("path:        %s\n", args[0])
		fmt.Printf("size:        %d bytes\n", e.storage.Size(ctx))
		fmt.Printf("writable:    %t\n", e.storage.Writable())
		fmt.Printf("tree root:   %d\n", e.tree.Root())

		count := 0
		if err := e.tree.Iterate(ctx, func(btree.Entry) bool { count++; return true }); err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		fmt.Printf("entries:     %d\n", count)
		return nil
	},
}

func init() {
	RootCommand.AddCommand(inspectCommand)
}
