package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayanobu/nicofetch/internal/domain"
	"github.com/ayanobu/nicofetch/internal/downloader"
	"github.com/ayanobu/nicofetch/internal/resolve"
	"github.com/ayanobu/nicofetch/internal/transport"
)

var qualitiesCmd = &cobra.Command{
	Use:   "qualities [url or id]",
	Short: "List the available video and audio qualities for a video",
	Args:  cobra.ExactArgs(1),
	RunE:  runQualities,
}

func init() {
	qualitiesCmd.Flags().String("session-cookie", "", "user_session cookie value (string or filepath)")
	rootCmd.AddCommand(qualitiesCmd)
}

func runQualities(cmd *cobra.Command, args []string) error {
	appCtx, err := setup()
	if err != nil {
		return err
	}
	if cookie, _ := cmd.Flags().GetString("session-cookie"); cookie != "" {
		appCtx.Config.Session.SessionCookie = cookie
	}

	client, err := transport.New(appCtx.Config.Session, appCtx.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := establishSession(ctx, appCtx, client); err != nil {
		return err
	}

	id, isLive, err := downloader.NormalizeID(args[0])
	if err != nil {
		return err
	}
	if isLive {
		return fmt.Errorf("quality listing for live broadcasts: %w", domain.ErrFormatNotSupported)
	}

	videos, audios, err := resolve.New(client, appCtx.Logger).Sources(ctx, id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRACK\tID\tAVAILABLE\tBITRATE\tDETAIL")
	for _, s := range videos {
		fmt.Fprintf(w, "video\t%s\t%t\t%d\t%dx%d\n", s.ID, s.IsAvailable, s.BitRate, s.Width, s.Height)
	}
	for _, s := range audios {
		fmt.Fprintf(w, "audio\t%s\t%t\t%d\t%d Hz\n", s.ID, s.IsAvailable, s.BitRate, s.SamplingRate)
	}
	return w.Flush()
}
