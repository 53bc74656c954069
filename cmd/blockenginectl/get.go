package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blockengine/blockengine/btree"
)

var getCommand = &cobra.Command{
	Use:   "get <file> <key>",
	Short: "Print the value stored under key, or (absent) if there is none",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		key, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}

		ctx := context.Background()
		e, err := openEngine(ctx, args[0], false)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		val, err := e.tree.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if val == btree.KeyNull {
			fmt.Println("(absent)")
			return nil
		}
		fmt.Println(val)
		return nil
	},
}

func init() {
	RootCommand.AddCommand(getCommand)
}
