package cmd

import (
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/suderio/baator/internal/config"
	"github.com/suderio/baator/internal/logger"
	"github.com/suderio/baator/internal/rng"
)

var rngdCmd = &cobra.Command{
	Use:   "rngd",
	Short: "Serve the RNG line protocol",
	Long: `Serves PING, VER, RAND <low> <high> and DICE d<sides> over TCP using the
local cryptographic source, so that other processes can run with
rng.mode=remote.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.RNG.Address
		}
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := rng.NewServer(rng.NewLocal(), log)
		go func() {
			<-ctx.Done()
			_ = l.Close()
			_ = srv.Close()
		}()

		if err := srv.Serve(l); err != nil {
			return err
		}
		log.Info("rng server stopped")
		return nil
	},
}

func init() {
	rngdCmd.Flags().String("addr", "", "listen address (default: rng.address)")
	rootCmd.AddCommand(rngdCmd)
}
