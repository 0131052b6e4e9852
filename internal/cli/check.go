package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/insider"
	"github.com/onlyscans/scanproxy/internal/logging"
	"github.com/onlyscans/scanproxy/internal/store"
	"github.com/onlyscans/scanproxy/internal/token"
	"github.com/onlyscans/scanproxy/internal/transport"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"c", "health", "status"},
	Short:   "Validate configuration and test the Reddit credentials",
	Long: `Validate the scanproxy configuration without starting the server.

This command checks:
- Configuration validity
- Reddit client credentials are present
- A client-credentials token exchange succeeds
- The insider snapshot store opens (live mode only)

Example:
  scanproxy check --config config.yaml`,
	RunE: runCheck,
}

// Check statuses.
const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusWarning = "WARNING"
	StatusSkip    = "SKIP"
)

const checkTimeout = 15 * time.Second

func init() {
	RootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	results := runChecks(cmd.Context(), globalFlags.Config)
	return outputCheckResults(cmd.OutOrStdout(), results)
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func runChecks(ctx context.Context, configPath string) []CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return []CheckResult{{
			Name:    "Configuration",
			Status:  StatusFail,
			Message: "Configuration is invalid",
			Details: err.Error(),
		}}
	}

	results := []CheckResult{{
		Name:    "Configuration",
		Status:  StatusPass,
		Message: "Configuration is valid",
		Details: fmt.Sprintf("addr=%s strategy=%s insider=%s", cfg.Server.Addr(), cfg.Reddit.FanOut.Strategy, cfg.Insider.Mode),
	}}

	creds := checkCredentials(cfg)
	results = append(results, creds)
	if creds.Status == StatusPass {
		results = append(results, checkTokenExchange(ctx, cfg))
	} else {
		results = append(results, CheckResult{
			Name:    "Token exchange",
			Status:  StatusSkip,
			Message: "Skipped without credentials",
		})
	}

	results = append(results, checkInsider(ctx, cfg))
	return results
}

func checkCredentials(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "Reddit credentials"}
	switch {
	case cfg.Reddit.ClientID == "":
		result.Status = StatusFail
		result.Message = "Client ID is not set"
		result.Details = fmt.Sprintf("set %s or reddit.client_id", config.EnvClientID)
	case cfg.Reddit.ClientSecret == "":
		result.Status = StatusFail
		result.Message = "Client secret is not set"
		result.Details = fmt.Sprintf("set %s or reddit.client_secret", config.EnvClientSecret)
	default:
		result.Status = StatusPass
		result.Message = "Client credentials present"
		result.Details = "client_id=" + logging.MaskSecret(cfg.Reddit.ClientID)
	}
	return result
}

func checkTokenExchange(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "Token exchange"}

	cache := token.NewCache(token.Options{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		TokenURL:     cfg.Reddit.TokenURL,
		Margin:       cfg.Reddit.TokenMargin,
		HTTPClient: transport.NewClient(transport.Options{
			Timeout:   cfg.Reddit.Timeout,
			UserAgent: cfg.Reddit.UserAgent,
			UseUTLS:   cfg.Transport.UTLS,
		}),
		Logger: logging.Discard(),
	})

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	cred, err := cache.Token(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = "Token exchange failed"
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = "Access token issued"
	result.Details = fmt.Sprintf("token=%s expires=%s", logging.MaskSecret(cred.Value), cred.Expiry.Format(time.RFC3339))
	return result
}

func checkInsider(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "Insider trades"}

	if cfg.Insider.Mode != config.InsiderModeLive {
		result.Status = StatusPass
		result.Message = "Serving mock data"
		return result
	}
	if cfg.Insider.SnapshotPath == "" {
		result.Status = StatusWarning
		result.Message = "Live mode without a snapshot store"
		result.Details = "feed failures will return errors"
		return result
	}

	db, err := store.NewSQLiteStore(cfg.Insider.SnapshotPath, store.WithLogger(logging.Discard()))
	if err != nil {
		result.Status = StatusFail
		result.Message = "Cannot open snapshot store"
		result.Details = err.Error()
		return result
	}
	defer db.Close()

	count, err := db.Count(ctx, insider.SnapshotKey)
	if err != nil {
		result.Status = StatusFail
		result.Message = "Cannot read snapshot store"
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = "Snapshot store ready"
	result.Details = fmt.Sprintf("path=%s snapshots=%d", cfg.Insider.SnapshotPath, count)
	return result
}

func outputCheckResults(w io.Writer, results []CheckResult) error {
	if globalFlags.JSON {
		return outputCheckResultsJSON(w, results)
	}
	return outputCheckResultsTable(w, results)
}

func outputCheckResultsJSON(w io.Writer, results []CheckResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if !checksPassed(results) {
		return errChecksFailed
	}
	return nil
}

func outputCheckResultsTable(out io.Writer, results []CheckResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE\tDETAILS")

	for _, r := range results {
		statusIcon := "✓"
		switch r.Status {
		case StatusFail:
			statusIcon = "✗"
		case StatusWarning, StatusSkip:
			statusIcon = "!"
		}

		details := r.Details
		if details == "" {
			details = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Name,
			statusIcon+" "+r.Status,
			r.Message,
			details,
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if !checksPassed(results) {
		fmt.Fprintln(out, "✗ Some checks failed. Please review the output above.")
		return errChecksFailed
	}
	fmt.Fprintln(out, "✓ All checks passed!")
	return nil
}

func checksPassed(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return false
		}
	}
	return true
}
