package cmd

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/overseerd/overseer/pkg/api"
	"github.com/overseerd/overseer/pkg/gate"
	"github.com/overseerd/overseer/pkg/shutdown"
)

var (
	serveAddr       string
	serveStaleAfter time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serve exposes project, session and pause state over HTTP, including
a Prometheus metrics endpoint. Sessions abandoned by a dead process are
marked interrupted at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newComponentLogger("serve")
		if err != nil {
			return err
		}
		defer log.Close()

		st, err := openStore()
		if err != nil {
			return err
		}

		if n, err := st.MarkStaleSessions(serveStaleAfter); err != nil {
			log.Warn("stale session cleanup failed", map[string]interface{}{"error": err.Error()})
		} else if n > 0 {
			log.Info("marked stale sessions interrupted", map[string]interface{}{"count": n})
		}

		g := gate.New(st, log)
		server := api.NewServer(st, g, log)

		httpServer := &http.Server{
			Addr:         serveAddr,
			Handler:      server.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		mgr := shutdown.New(30 * time.Second)
		mgr.Register(shutdown.CloseResource(st, "store"))
		mgr.Register(shutdown.StopHTTPServer(httpServer, "api"))

		go func() {
			log.Info("API server listening", map[string]interface{}{"addr": serveAddr})
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("API server failed", map[string]interface{}{"error": err.Error()})
			}
		}()

		mgr.Wait()
		mgr.Shutdown()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().DurationVar(&serveStaleAfter, "stale-after", 24*time.Hour, "mark sessions older than this as interrupted on startup")

	rootCmd.AddCommand(serveCmd)
}
