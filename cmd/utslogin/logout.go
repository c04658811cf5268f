package main

import (
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token for the server",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	client, store := mustResolve()
	if err := store.Delete(appConfig.Token.Key); err != nil {
		fatal(err)
	}
	printJSON(map[string]any{
		"server":    client.BaseURL(),
		"signed_in": false,
	})
	return nil
}
