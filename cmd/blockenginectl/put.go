package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var putCommand = &cobra.Command{
	Use:   "put <file> <key> <value>",
	Short: "Set key to value in the file's tree, creating the file if needed",
	Args:  cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		key, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}
		val, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}

		ctx := context.Background()
		create := false
		if _, err := os.Stat(args[0]); os.IsNotExist(err) {
			create = true
		}
		e, err := openEngine(ctx, args[0], create)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		if err := e.tree.Put(ctx, key, val); err != nil {
			return fmt.Errorf("put: %w", err)
		}
		return e.storage.Flush(ctx)
	},
}

func init() {
	RootCommand.AddCommand(putCommand)
}
