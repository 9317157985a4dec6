package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pairlink/internal/store"
	"github.com/nextlevelbuilder/pairlink/pkg/protocol"
)

func librariesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "libraries",
		Short: "Manage the libraries peers can be paired into",
	}
	cmd.AddCommand(librariesListCmd())
	cmd.AddCommand(librariesAddCmd())
	return cmd
}

func librariesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List libraries",
		Run: func(cmd *cobra.Command, args []string) {
			resp := mustRPC(protocol.MethodLibrariesList, nil)
			var result struct {
				Libraries []store.LibraryDescriptor `json:"libraries"`
			}
			if err := decodePayload(resp, &result); err != nil {
				fmt.Printf("Error parsing library list: %v\n", err)
				os.Exit(1)
			}
			if len(result.Libraries) == 0 {
				fmt.Println("No libraries.")
				return
			}
			for _, lib := range result.Libraries {
				fmt.Printf("  %s  %s\n", lib.UUID, lib.DisplayName)
			}
		},
	}
}

func librariesAddCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create a library (prompts for the name if not given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := ""
			if len(args) == 1 {
				name = args[0]
			} else {
				var err error
				name, err = promptLibraryName()
				if err != nil || name == "" {
					fmt.Println("Cancelled.")
					return
				}
			}

			params := map[string]any{"display_name": name}
			if id != "" {
				params["uuid"] = id
			}
			resp := mustRPC(protocol.MethodLibrariesAdd, params)
			var lib store.LibraryDescriptor
			if err := decodePayload(resp, &lib); err != nil {
				fmt.Printf("Error parsing library: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Library %q created: %s\n", lib.DisplayName, lib.UUID)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "library id (generated when empty)")
	return cmd
}
