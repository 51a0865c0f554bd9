package root

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hypervisual/banklink/pkg/config"
	"github.com/hypervisual/banklink/pkg/token"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and manage Revolut OAuth2 tokens",
	}

	cmd.AddCommand(newTokenStatusCmd())
	cmd.AddCommand(newTokenRefreshCmd())
	cmd.AddCommand(newTokenStoreCmd())

	return cmd
}

// newTokenManager builds a manager wired the same way the server is,
// including the durable tier, so CLI commands see the persisted state.
func newTokenManager() (*token.Manager, error) {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	durable, _ := openDurableTier(cfg)
	return token.NewManager(cfg, token.NewStore(durable)), nil
}

func newTokenStatusCmd() *cobra.Command {
	var (
		company    string
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show token status for a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := newTokenManager()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if all {
				statuses := tokens.AllTokenStatuses()
				if jsonOutput {
					return json.NewEncoder(w).Encode(statuses)
				}
				if len(statuses) == 0 {
					fmt.Fprintln(w, "No tokens stored.")
					return nil
				}
				for _, st := range statuses {
					printStatus(cmd, st)
				}
				return nil
			}

			st := tokens.TokenStatus(company)
			if jsonOutput {
				return json.NewEncoder(w).Encode(st)
			}
			printStatus(cmd, st)
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "HYPERVISUAL", "Company id")
	cmd.Flags().BoolVar(&all, "all", false, "Show all companies")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, st token.Status) {
	w := cmd.OutOrStdout()
	if !st.HasToken {
		fmt.Fprintf(w, "%s: no token stored\n", st.Company)
		return
	}
	state := "valid"
	if st.Expiring {
		state = "expiring"
	}
	fmt.Fprintf(w, "%s: %s, expires in %ds, refresh token: %v", st.Company, state, st.ExpiresInSeconds, st.HasRefreshToken)
	if st.Warning != "" {
		fmt.Fprintf(w, " (warning: %s)", st.Warning)
	}
	fmt.Fprintln(w)
}

func newTokenRefreshCmd() *cobra.Command {
	var company string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh for a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := newTokenManager()
			if err != nil {
				return err
			}
			grant, err := tokens.ForceRefresh(cmd.Context(), company)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed for %s (source: %s)\n", company, grant.Source)
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "HYPERVISUAL", "Company id")

	return cmd
}

func newTokenStoreCmd() *cobra.Command {
	var (
		company      string
		accessToken  string
		refreshToken string
		expiresIn    int64
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Seed a token obtained out of band",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := newTokenManager()
			if err != nil {
				return err
			}
			err = tokens.StoreToken(cmd.Context(), company, token.Data{
				AccessToken:  accessToken,
				RefreshToken: refreshToken,
				ExpiresIn:    expiresIn,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored for %s\n", company)
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "HYPERVISUAL", "Company id")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "Access token (required)")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "Refresh token")
	cmd.Flags().Int64Var(&expiresIn, "expires-in", 0, "Access token lifetime in seconds")
	_ = cmd.MarkFlagRequired("access-token")

	return cmd
}
