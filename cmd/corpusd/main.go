package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corpuslabs/corpusd/internal/cli"
	"github.com/corpuslabs/corpusd/internal/cli/admin"
	"github.com/corpuslabs/corpusd/internal/cli/client"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corpusd",
		Short: "Local knowledge daemon and CLI",
		Long:  "corpusd indexes document collections into vector knowledge bases and serves semantic retrieval over them",
	}

	rootCmd.PersistentFlags().BoolP("output", "o", false, "Output raw JSON instead of formatted text")
	rootCmd.PersistentFlags().String("api-url", "", "Base URL of the corpusd API (default http://localhost:8080)")

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(client.AddCmd())
	rootCmd.AddCommand(client.ListCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.ProcessCmd())
	rootCmd.AddCommand(client.SourceCmd())
	rootCmd.AddCommand(client.SearchCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
