package cmd

import (
	"context"
	"log/slog"
	"os"
	osignal "os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/S4tyendra/public-vc/internal/application/config"
	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/peer"
)

var (
	joinServerURL string
	joinRoomID    string
	joinUserID    string
	joinUserName  string
)

// joinCmd runs a headless participant. It connects to a room, answers and
// sends offers like a browser client would, and publishes a silent audio
// track. Useful for smoke testing a deployment without opening a browser.
var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room as a headless client",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := osignal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		slog.SetDefault(
			slog.New(
				slog.NewJSONHandler(
					os.Stdout,
					&slog.HandlerOptions{Level: slog.LevelInfo},
				),
			),
		)

		cfg, err := config.New()
		if err != nil {
			slog.Error("parse config", slog.Any(constant.Error, err))
			os.Exit(1)
		}

		if joinUserID == "" {
			joinUserID = uuid.NewString()
		}

		client, err := peer.Dial(ctx, joinServerURL, joinRoomID, joinUserID, joinUserName, cfg.ICEServers())
		if err != nil {
			slog.Error("dial signaling server", slog.Any(constant.Error, err))
			os.Exit(1)
		}

		slog.Info(
			"joined room",
			slog.String(constant.RoomID, joinRoomID),
			slog.String(constant.UserID, joinUserID),
		)

		if err := client.Run(ctx); err != nil {
			slog.Error("client stopped", slog.Any(constant.Error, err))
			os.Exit(1)
		}
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinServerURL, "server", "http://localhost:3000", "signaling server base URL")
	joinCmd.Flags().StringVar(&joinRoomID, "room", "", "room id to join")
	joinCmd.Flags().StringVar(&joinUserID, "user", "", "user id (random when empty)")
	joinCmd.Flags().StringVar(&joinUserName, "name", "headless", "display name")

	_ = joinCmd.MarkFlagRequired("room")

	rootCmd.AddCommand(joinCmd)
}
