package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/collagist/collagist/backend-go/internal/auth"
	"github.com/collagist/collagist/backend-go/internal/catalog"
)

func newTokenCmd() *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [workshop]",
		Short: "Issue an edit token for a workshop",
		Long: `Sign an edit token that lets its holder change the board of one workshop.

The secret must match the server's JWT_SECRET. It defaults to that
environment variable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !catalog.ValidKey(key) {
				return fmt.Errorf("invalid workshop key %q", key)
			}
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set JWT_SECRET")
			}

			token, err := auth.NewService(secret).IssueToken(key, ttl)
			if err != nil {
				return err
			}
			loggerFromContext(cmd.Context()).Debug("issued token", "workshop", key, "ttl", ttl)

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")

	return cmd
}
