// Package cmd implements the sharepkg command
//
// It is in a sub package so it's internals can be re-used elsewhere
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/configfile"
	"github.com/sharepkg/sharepkg/fs/config/configflags"
	"github.com/sharepkg/sharepkg/fs/config/configmap"
	"github.com/sharepkg/sharepkg/fs/config/flags"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Globals
var (
	// Errors
	errorNotEnoughArguments = errors.New("not enough arguments")
	errorTooManyArguments   = errors.New("too many arguments")
)

const (
	exitCodeSuccess = iota
	exitCodeUsageError
	exitCodeUncategorizedError
	exitCodeAuthError
	exitCodeTransportError
	exitCodeProtocolError
	exitCodeUploadError
	exitCodeNotFoundError
	exitCodeShareError
	exitCodeValidationError
)

// Root is the main sharepkg command
var Root = &cobra.Command{
	Use:   "sharepkg",
	Short: "Publish packages to a portal and share them",
	Long: `
sharepkg uploads map, tile, layer and other packages to a portal as
items, sets their metadata and shares them with groups, the
organisation or everyone.

Large packages are sent in parts and the portal is polled until it has
finished processing them.

Options are read from the command line, then from environment
variables named SHAREPKG_<OPTION> and then from the config file.
`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	ci := fs.GetConfig(context.Background())
	configflags.AddFlags(ci, Root.PersistentFlags())
	AddPortalFlags(Root.PersistentFlags())
	flags.StringVarP(Root.PersistentFlags(), &metricsFile, "metrics-file", "", "", "Write HTTP and upload metrics to this file when done")
}

// ShowVersion prints the version to stdout
func ShowVersion() {
	fmt.Printf("sharepkg %s\n", fs.Version)
	fmt.Printf("- os/type: %s\n", runtime.GOOS)
	fmt.Printf("- os/arch: %s\n", runtime.GOARCH)
	fmt.Printf("- go/version: %s\n", runtime.Version())
}

// portalFlagName turns an option name into a flag name
func portalFlagName(name string) string {
	return strings.Replace(name, "_", "-", -1)
}

// AddPortalFlags adds a flag for each portal option.  These are plain
// string flags parsed by configstruct like the other config sources.
func AddPortalFlags(flagSet *pflag.FlagSet) {
	for _, opt := range portal.Help() {
		name := portalFlagName(opt.Name)
		if flagSet.Lookup(name) != nil {
			fs.Errorf(nil, "Not adding duplicate flag --%s", name)
			continue
		}
		flagSet.String(name, opt.Default, opt.Help)
	}
}

// PortalConfig returns the portal config looked up in the changed
// flags, then the environment, then the config file.
func PortalConfig(flagSet *pflag.FlagSet) (configmap.Getter, error) {
	file, err := configfile.Load(configflags.ConfigPath)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ValidationError, err, "bad config")
	}
	m := configmap.New()
	m.AddGetter(flags.Getter{Flags: flagSet})
	m.AddGetter(configmap.NewEnv(fs.ConfigPrefix))
	m.AddGetter(file)
	return m, nil
}

// NewPortal makes a portal from the config and signs in to it
func NewPortal(ctx context.Context) (*portal.Portal, error) {
	m, err := PortalConfig(Root.PersistentFlags())
	if err != nil {
		return nil, err
	}
	p, err := portal.NewPortal(ctx, m)
	if err != nil {
		return nil, err
	}
	if err = p.LoginFromOptions(ctx); err != nil {
		return nil, err
	}
	fs.Debugf(p, "Signed in as %q to %q", p.Session().Username(), p.Session().PortalName())
	return p, nil
}

// Run the function and exit with a code depending on the error.
//
// The context passed to f is cancelled on an interrupt so polls and
// retry sleeps stop early.
func Run(cmd *cobra.Command, f func(ctx context.Context) error) {
	ctx, stop := interruptContext()
	cmdErr := f(ctx)
	stop()
	writeMetrics()
	fs.Debugf(nil, "%d go routines active", runtime.NumGoroutine())
	if cmdErr != nil {
		log.Printf("Failed to %s: %v", cmd.Name(), cmdErr)
	}
	resolveExitCode(cmdErr)
}

// interruptContext returns a context cancelled by SIGINT or SIGTERM
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// CheckArgs checks there are enough arguments and prints a message if not
func CheckArgs(MinArgs, MaxArgs int, cmd *cobra.Command, args []string) {
	if len(args) < MinArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments minimum: you provided %d non flag arguments: %q\n", cmd.Name(), MinArgs, len(args), args)
		resolveExitCode(errorNotEnoughArguments)
	} else if MaxArgs >= 0 && len(args) > MaxArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments maximum: you provided %d non flag arguments: %q\n", cmd.Name(), MaxArgs, len(args), args)
		resolveExitCode(errorTooManyArguments)
	}
}

// initConfig is run by cobra after initialising the flags
func initConfig() {
	ci := fs.GetConfig(context.Background())

	// Finish parsing any command line flags
	configflags.SetFlags(ci, Root.PersistentFlags())

	// Start the logger
	fs.InitLogging(context.Background())

	if metricsFile != "" {
		if err := startMetrics(); err != nil {
			log.Fatalf("Failed to start metrics: %v", err)
		}
	}

	// Write the args for debug purposes
	fs.Debugf("sharepkg", "Version %q starting with parameters %q", fs.Version, os.Args)
}

// exitCode works out the exit code for err
func exitCode(err error) int {
	if err == nil {
		return exitCodeSuccess
	}
	if err == errorNotEnoughArguments || err == errorTooManyArguments {
		return exitCodeUsageError
	}
	switch fserrors.KindOf(err) {
	case fserrors.AuthError:
		return exitCodeAuthError
	case fserrors.TransportError:
		return exitCodeTransportError
	case fserrors.ProtocolError:
		return exitCodeProtocolError
	case fserrors.UploadError:
		return exitCodeUploadError
	case fserrors.NotFoundError:
		return exitCodeNotFoundError
	case fserrors.ShareError:
		return exitCodeShareError
	case fserrors.ValidationError:
		return exitCodeValidationError
	}
	return exitCodeUncategorizedError
}

func resolveExitCode(err error) {
	os.Exit(exitCode(err))
}

// Main runs sharepkg interpreting flags and commands out of os.Args
func Main() {
	if err := Root.Execute(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}
