package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unimate/utslogin/flow"
)

var (
	verifyID   string
	verifyCode string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a one-time code and store the access token",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyID, "id", "", "Student ID the code was requested for (required)")
	verifyCmd.Flags().StringVar(&verifyCode, "code", "", "6-digit verification code from email (required)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(verifyID)
	if id == "" {
		fmt.Fprintln(os.Stderr, "Missing student ID (use --id)")
		os.Exit(2)
	}
	code := strings.TrimSpace(verifyCode)
	if len([]rune(code)) != flow.CodeLength {
		fmt.Fprintf(os.Stderr, "Verification code must be %d characters (use --code)\n", flow.CodeLength)
		os.Exit(2)
	}

	client, store := mustResolve()
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.Timeout)
	defer cancel()

	nav := &recordingNavigator{}
	var notice flow.Notice
	f := newFlow(appConfig, client, store, nav,
		flow.WithNotifier(flow.NotifierFunc(func(n flow.Notice) { notice = n })),
	)
	defer f.Close()

	if err := enterCode(ctx, f, id, code); err != nil {
		return err
	}
	if !notice.OK() {
		fmt.Fprintf(os.Stderr, "%s: %s\n", notice.Title, notice.Message)
		os.Exit(1)
	}
	printJSON(map[string]string{
		"email":       f.Address(),
		"message":     notice.Message,
		"destination": nav.screen,
		"token_store": store.Path(),
	})
	return nil
}

// enterCode resumes f for id, types code into the cells and submits it.
func enterCode(ctx context.Context, f *flow.Flow, id, code string) error {
	if err := f.ResumeCode(id); err != nil {
		return err
	}
	i := 0
	for _, r := range code {
		if err := f.EditCell(i, string(r)); err != nil {
			return err
		}
		i++
	}
	_, err := f.SubmitCode(ctx)
	return err
}

type recordingNavigator struct{ screen string }

func (n *recordingNavigator) NavigateTo(screen string) error {
	n.screen = screen
	return nil
}
