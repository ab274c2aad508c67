package main

import (
	"fmt"

	"github.com/oriys/meridian/internal/connector"
	"github.com/spf13/cobra"
)

func connectorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "Work with connector spec files",
	}
	cmd.AddCommand(connectorsExampleCmd(), connectorsValidateCmd())
	return cmd
}

func connectorsExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an example connector spec",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(connector.ExampleYAML())
		},
	}
}

func connectorsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <spec-file-or-dir>",
		Short: "Parse and validate connector spec files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connectors, err := loadConnectorSpecs(args[0])
			if err != nil {
				return err
			}
			for _, c := range connectors {
				fmt.Printf("%s: %s ok\n", c.ID, c.RemoteFunction.Kind)
			}
			fmt.Printf("%d connectors valid\n", len(connectors))
			return nil
		},
	}
}
