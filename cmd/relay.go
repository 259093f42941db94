package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/trace"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Receive events from remote buses over websocket",
	Long: `Accepts websocket connections on /events from processes configured with
bus.transport=websocket, republishes their events on a local bus and logs
them. Bus counters are exposed on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		tracePath, _ := cmd.Flags().GetString("trace")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		a.events.Subscribe(bus.Wildcard, func(e bus.Event) error {
			a.log.WithField("event", e.Name).WithField("payload", e.Payload).Info("relayed")
			return nil
		})
		if tracePath != "" {
			store, err := trace.NewStore(tracePath)
			if err != nil {
				return err
			}
			rec := trace.NewRecorder(store, a.log)
			rec.Attach(a.events)
			defer func() {
				a.events.Stop()
				rec.Detach()
				store.Close()
			}()
		}

		mux := http.NewServeMux()
		mux.Handle("/events", bus.NewRelay(a.events, a.log))
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()

		a.log.WithField("addr", addr).Info("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	relayCmd.Flags().String("addr", ":8080", "listen address")
	relayCmd.Flags().String("trace", "", "append relayed diagnostic events to this JSONL file")
	rootCmd.AddCommand(relayCmd)
}
