package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raktradar/relay/logging"
	"github.com/raktradar/relay/transport"
)

func newRootCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "relayd",
		Short: "Cross-process broadcast broker for delivery dashboards",
		Long: "relayd relays dashboard events between processes on the same machine. " +
			"Dashboards connect over a local websocket; every event a dashboard " +
			"publishes is forwarded to all other connected dashboards.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger("relayd")
			broker := transport.NewBroker()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := broker.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Broker shutdown error: %v", err)
				}
			}()

			logger.WithField("addr", addr).Info("Starting broker")
			if err := broker.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("broker error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":7420", "listen address for dashboard connections")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
