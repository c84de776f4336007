package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/notification"
)

// Command returns a cobra command that sends a test notification through
// every enabled provider
func Command(settings *conf.Settings) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test emergency notification",
		Long: `Send a clearly marked test message through every enabled notification
provider: shoutrrr services, the webhook and the dial script.

Examples:
  fallguard notify
  fallguard notify --timeout=1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := notification.NewServiceFromSettings(&settings.Notification, nil)
			if err != nil {
				return err
			}
			providers := service.Providers()
			if len(providers) == 0 {
				return notification.ErrNoProviders
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := service.SendTest(ctx); err != nil {
				return fmt.Errorf("test notification failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent via %v\n", providers)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	return cmd
}
