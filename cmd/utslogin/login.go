package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/unimate/utslogin/flow"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in interactively with a one-time code",
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if !isTTY() {
		fmt.Fprintln(os.Stderr, "login needs an interactive terminal (use request-code and verify instead)")
		os.Exit(2)
	}
	client, store := mustResolve()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess := newTerminalSession(os.Stdin, os.Stdout, appConfig.Login.EmailDomain)
	f := newFlow(appConfig, client, store, sess,
		flow.WithNotifier(sess),
		flow.WithFocusController(sess),
	)
	defer f.Close()

	if err := sess.Run(ctx, f); err != nil {
		if errors.Is(err, errAborted) {
			fmt.Fprintln(os.Stderr, "Login aborted.")
			return nil
		}
		return err
	}
	return nil
}
