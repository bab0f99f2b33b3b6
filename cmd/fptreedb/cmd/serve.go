/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fptreedb/fptree/pkg/api"
	"github.com/fptreedb/fptree/pkg/di"
)

var container = di.NewContainer()

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the fptreedb REST API server, exposing find/insert/update/
deleteKey/rangeScan over HTTP with Prometheus metrics at /metrics.

Example:
  fptreedb serve --data-dir=./data --port=8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("data-dir")
		port, _ := cmd.Flags().GetInt("port")
		apiKey, _ := cmd.Flags().GetString("api-key")

		tree, cfg, err := openTree(dir)
		if err != nil {
			return err
		}

		if apiKey == "" {
			apiKey = cfg.Security.ClientAPIKey
		}
		if apiKey == "" || apiKey == "auto" {
			return fmt.Errorf("no API key configured: run 'fptreedb init' or pass --api-key")
		}

		serverConfig := api.ServerConfig{
			Bind:   cfg.Bind,
			Port:   port,
			APIKey: apiKey,
		}

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(tree, serverConfig)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("api-key", "", "API key for authentication (defaults to the one in config.yaml)")

	// serve opens its own tree via openTree inside RunE rather than through
	// rootCmd's PersistentPreRunE, since it also needs cfg.Bind/ClientAPIKey.
	serveCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return nil
	}
}
