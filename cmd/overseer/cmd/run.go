package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/overseerd/overseer/pkg/gate"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/orchestrator"
	"github.com/overseerd/overseer/pkg/preflight"
	"github.com/overseerd/overseer/pkg/review"
	"github.com/overseerd/overseer/pkg/runner"
	"github.com/overseerd/overseer/pkg/shutdown"
)

var (
	runMaxUnits      int
	runStopOnPhase   bool
	runRunnerURL     string
	runSkipPreflight bool
	runStaleAfter    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <project-id>",
	Short: "Run one work session against a project",
	Long: `Run starts a session for the project: it resumes from the latest
checkpoint, executes backlog tasks in order through the execution
service, and checkpoints progress after every unit. The session ends
completed, checkpointed, paused or failed. SIGINT/SIGTERM saves a
checkpoint before exiting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newComponentLogger("run")
		if err != nil {
			return err
		}
		defer log.Close()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		runnerURL := runRunnerURL
		if runnerURL == "" {
			runnerURL = viper.GetString("runner_url")
		}
		if runnerURL == "" {
			return fmt.Errorf("execution service URL is required (--runner or OVERSEER_RUNNER_URL)")
		}

		cfg := orchestrator.DefaultConfig()
		cfg.MaxUnits = runMaxUnits
		cfg.StopOnPhaseChange = runStopOnPhase
		if !runSkipPreflight {
			pf := preflight.DefaultConfig()
			cfg.Preflight = &pf
		}

		g := gate.New(st, log)
		client := runner.NewClient(runnerURL)
		reviews := review.NewScheduler(st, review.NewRunnerReviewer(runnerURL), log)
		orch := orchestrator.New(st, client, g, reviews, log, cfg)

		if n, err := orch.CleanupStale(runStaleAfter); err != nil {
			log.Warn("stale session cleanup failed", map[string]interface{}{"error": err.Error()})
		} else if n > 0 {
			log.Info("cleaned up stale sessions", map[string]interface{}{"count": n})
		}

		mgr := shutdown.New(30 * time.Second)
		ctx, cancel := mgr.Context(context.Background())
		defer cancel()

		var sess *models.Session
		var runErr error
		finished := make(chan struct{})
		go func() {
			sess, runErr = orch.RunSession(ctx, args[0])
			close(finished)
			mgr.Trigger()
		}()

		settled := func() bool {
			select {
			case <-finished:
				return true
			default:
				return false
			}
		}
		mgr.Register(shutdown.WaitForSessions(settled, 100*time.Millisecond))

		go mgr.Wait()
		<-mgr.Done()
		// On a signal this drains the session until its checkpoint is
		// written; on normal completion it returns immediately
		mgr.Shutdown()

		if runErr != nil {
			return runErr
		}
		if sess == nil {
			fmt.Println("Shutdown requested before the session started; run again once the pause is resolved")
			return nil
		}

		if done, perr := printStructured(sess); done {
			return perr
		}
		fmt.Printf("Session #%d finished: %s (%d units completed)\n",
			sess.Number, sess.Status, sess.UnitsCompleted)
		if sess.Status == models.SessionStatusPaused {
			fmt.Println("Session is awaiting intervention; resolve it with 'overseer pauses resolve'")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxUnits, "max-units", 0, "checkpoint and stop after this many units (0 = unlimited)")
	runCmd.Flags().BoolVar(&runStopOnPhase, "stop-on-phase", false, "checkpoint at backlog phase boundaries")
	runCmd.Flags().StringVar(&runRunnerURL, "runner", "", "execution service URL")
	runCmd.Flags().BoolVar(&runSkipPreflight, "skip-preflight", false, "skip host resource checks")
	runCmd.Flags().DurationVar(&runStaleAfter, "stale-after", 24*time.Hour, "mark sessions older than this as interrupted on startup")

	rootCmd.AddCommand(runCmd)
}
