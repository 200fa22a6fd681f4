package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
)

var ErrNotPaired = errors.New("whatsapp device is not paired")

// Client is the part of whatsmeow the connector drives.
type Client interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	Upload(ctx context.Context, plaintext []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	OwnUser() string
	Paired() bool
}

type DeviceConfig struct {
	DBPath   string
	LogLevel string
}

// Device is a whatsmeow client bound to the sqlite device store.
type Device struct {
	*whatsmeow.Client
	container *sqlstore.Container
}

var _ Client = (*Device)(nil)

// OpenDevice loads the first stored device, or a fresh unpaired one.
func OpenDevice(ctx context.Context, cfg DeviceConfig, logger *slog.Logger) (*Device, error) {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		return nil, fmt.Errorf("whatsapp device db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create whatsapp store dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+path+"?_foreign_keys=on", newLogger(logger, "database", cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	client := whatsmeow.NewClient(device, newLogger(logger, "client", cfg.LogLevel))
	return &Device{Client: client, container: container}, nil
}

func (d *Device) OwnUser() string {
	if d.Store == nil || d.Store.ID == nil {
		return ""
	}
	return d.Store.ID.User
}

func (d *Device) Paired() bool {
	return d.Store != nil && d.Store.ID != nil
}

func (d *Device) Close() error {
	d.Disconnect()
	return d.container.Close()
}

// Pair links the device by printing login QR codes to out until the phone
// scans one. An already paired device returns immediately.
func (d *Device) Pair(ctx context.Context, out io.Writer) error {
	if d.Paired() {
		return nil
	}
	qrChan, err := d.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("open qr channel: %w", err)
	}
	if err := d.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			fmt.Fprintln(out, "Escanea este código desde WhatsApp > Dispositivos vinculados:")
			qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, out)
		case whatsmeow.QRChannelSuccess.Event:
			fmt.Fprintln(out, "✅ Dispositivo vinculado.")
			return nil
		case whatsmeow.QRChannelTimeout.Event:
			return fmt.Errorf("pairing timed out")
		case whatsmeow.QRChannelEventError:
			return fmt.Errorf("pairing failed: %w", item.Error)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("pairing ended without success")
}
