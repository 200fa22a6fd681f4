package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/connectors/whatsapp"
)

func newPairCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Link this bot to a WhatsApp account by scanning a QR code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			device, err := whatsapp.OpenDevice(ctx, whatsapp.DeviceConfig{
				DBPath:   cfg.WhatsAppDBPath,
				LogLevel: cfg.WhatsAppLogLevel,
			}, logger)
			if err != nil {
				return err
			}
			defer device.Close()

			if device.Paired() {
				cmd.Printf("Ya vinculado como %s. Borra %s para vincular otra cuenta.\n", device.OwnUser(), cfg.WhatsAppDBPath)
				return nil
			}
			if err := device.Pair(ctx, cmd.OutOrStdout()); err != nil {
				return err
			}
			cmd.Println("Ahora ejecuta `wabot serve`.")
			return nil
		},
	}
}
