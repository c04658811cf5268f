package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unimate/utslogin/flow"
)

var requestCodeID string

var requestCodeCmd = &cobra.Command{
	Use:   "request-code",
	Short: "Ask the backend to email a one-time code",
	RunE:  runRequestCode,
}

func init() {
	requestCodeCmd.Flags().StringVar(&requestCodeID, "id", "", "Student ID (the part before @)")
	rootCmd.AddCommand(requestCodeCmd)
}

func runRequestCode(cmd *cobra.Command, args []string) error {
	client, store := mustResolve()
	f := newFlow(appConfig, client, store, nopNavigator{})
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.Timeout)
	defer cancel()
	notice, err := requestCode(ctx, f, requestCodeID)
	if err != nil {
		return err
	}
	if !notice.OK() {
		fmt.Fprintf(os.Stderr, "%s: %s\n", notice.Title, notice.Message)
		if notice.Kind == flow.NoticeValidation {
			os.Exit(2)
		}
		os.Exit(1)
	}
	printJSON(map[string]string{
		"email":   f.Address(),
		"message": notice.Message,
	})
	return nil
}

func requestCode(ctx context.Context, f *flow.Flow, id string) (flow.Notice, error) {
	if err := f.SetPrefix(strings.TrimSpace(id)); err != nil {
		return flow.Notice{}, err
	}
	return f.SubmitAddress(ctx)
}

type nopNavigator struct{}

func (nopNavigator) NavigateTo(string) error { return nil }
