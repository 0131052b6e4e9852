package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/cobra"

	"github.com/onlyscans/scanproxy/internal/config"
	"github.com/onlyscans/scanproxy/internal/errors"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitCheckFailed = 3
)

// errChecksFailed is returned by check when at least one check fails.
var errChecksFailed = stderrors.New("health check failed")

// Build metadata, set with -ldflags "-X".
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "scanproxy",
	Short: "scanproxy - Reddit and SEC EDGAR proxy for OnlyScans",
	Long: `scanproxy forwards browser requests to the Reddit OAuth API and the
SEC EDGAR current-filings feed, keeping API credentials on the server.

Usage:
  scanproxy [command] [flags]

Available Commands:
  serve      Start the proxy server
  check      Validate configuration and test the Reddit credentials
  version    Print version information

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "scanproxy [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = config.DefaultPath
	}

	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPath, "Path to configuration file")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of scanproxy",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

func printVersion(w io.Writer) {
	info := GetVersionInfo()
	fmt.Fprintln(w, "scanproxy Version:", info.Version)
	fmt.Fprintln(w, "Go Version:", info.GoVersion)
	fmt.Fprintln(w, "OS/Arch:", info.OS+"/"+info.Arch)
	fmt.Fprintln(w, "Build Date:", info.BuildDate)
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
	BuildDate string
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: BuildDate,
	}
}

var initOnce sync.Once

// InitCLI registers global flags and subcommands. Safe to call repeatedly.
func InitCLI() {
	initOnce.Do(InitRoot)
}

// Execute runs the root command with args.
func Execute(ctx context.Context, args []string) error {
	RootCmd.SetArgs(args)
	return RootCmd.ExecuteContext(ctx)
}

// ExecuteWithErrorCode runs the root command, reports any error on stderr
// and returns the process exit code for it.
func ExecuteWithErrorCode(args []string) int {
	err := Execute(context.Background(), args)
	if err == nil {
		return ExitOK
	}
	if !stderrors.Is(err, errChecksFailed) {
		fmt.Fprintf(RootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		validation *errors.ErrConfigValidation
		parse      *errors.ErrConfigParse
		read       *errors.ErrFileRead
	)
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, errChecksFailed):
		return ExitCheckFailed
	case stderrors.As(err, &validation), stderrors.As(err, &parse), stderrors.As(err, &read):
		return ExitConfig
	default:
		return ExitFailure
	}
}
