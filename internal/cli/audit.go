package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maulida/sleuth/pkg/audit"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run one batch audit and exit",
	Long: `Run a single batch audit synchronously: fetch all approved questions,
answer each through the auditor agent, and store the results. Exits
non-zero only on startup failure; per-question failures are reported in
the summary.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("Interrupt received, finishing current question")
		cancel()
	}()

	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.service.RunNow(ctx)
	if err != nil {
		return fmt.Errorf("batch audit failed: %w", err)
	}

	fmt.Printf("Run %s finished: %d succeeded, %d skipped, %d failed\n",
		result.RunID, result.Succeeded, result.Skipped, result.Failed)
	for _, o := range result.Outcomes {
		if o.Status == audit.OutcomeSucceeded {
			continue
		}
		fmt.Printf("  question %d: %s (%s) %s\n", o.QuestionID, o.Status, o.Reason, o.Detail)
	}
	return nil
}
