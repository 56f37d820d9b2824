package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/configflags"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/sharepkg/sharepkg/fs/operations"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCode(t *testing.T) {
	for _, test := range []struct {
		err  error
		want int
	}{
		{nil, exitCodeSuccess},
		{errorNotEnoughArguments, exitCodeUsageError},
		{errorTooManyArguments, exitCodeUsageError},
		{errors.New("potato"), exitCodeUncategorizedError},
		{fserrors.New(fserrors.AuthError, "bad password"), exitCodeAuthError},
		{fserrors.New(fserrors.TransportError, "no route"), exitCodeTransportError},
		{fserrors.New(fserrors.ProtocolError, "bad json"), exitCodeProtocolError},
		{fserrors.New(fserrors.UploadError, "failed"), exitCodeUploadError},
		{fserrors.New(fserrors.NotFoundError, "gone"), exitCodeNotFoundError},
		{fserrors.New(fserrors.ShareError, "no permission"), exitCodeShareError},
		{fserrors.New(fserrors.ValidationError, "no file"), exitCodeValidationError},
		{errors.Wrap(fserrors.New(fserrors.NotFoundError, "gone"), "deleting"), exitCodeNotFoundError},
		{&operations.PublishError{
			Stage:   operations.StageShare,
			Message: "Could not set sharing properties",
			Err:     fserrors.New(fserrors.ShareError, "no permission"),
		}, exitCodeShareError},
	} {
		assert.Equal(t, test.want, exitCode(test.err), test.err)
	}
}

func TestPortalFlagName(t *testing.T) {
	assert.Equal(t, "portal-url", portalFlagName("portal_url"))
	assert.Equal(t, "username", portalFlagName("username"))
}

func TestPortalConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sharepkg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
portal_url: https://file.example.com/portal
username: file
password: file
chunk_size: 5M
`), 0600))
	oldConfigPath := configflags.ConfigPath
	configflags.ConfigPath = path
	defer func() { configflags.ConfigPath = oldConfigPath }()

	t.Setenv("SHAREPKG_USERNAME", "env")
	t.Setenv("SHAREPKG_PASSWORD", "env")

	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddPortalFlags(flagSet)
	require.NoError(t, flagSet.Parse([]string{"--username", "flag"}))

	m, err := PortalConfig(flagSet)
	require.NoError(t, err)

	for _, test := range []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"username", "flag", true},
		{"password", "env", true},
		{"portal_url", "https://file.example.com/portal", true},
		{"chunk_size", "5M", true},
		{"token", "", false},
	} {
		got, ok := m.Get(test.key)
		assert.Equal(t, test.wantOK, ok, test.key)
		assert.Equal(t, test.want, got, test.key)
	}
}

func TestPortalConfigBadFile(t *testing.T) {
	oldConfigPath := configflags.ConfigPath
	configflags.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { configflags.ConfigPath = oldConfigPath }()

	_, err := PortalConfig(pflag.NewFlagSet("test", pflag.ContinueOnError))
	require.Error(t, err)
	assert.True(t, fserrors.Is(err, fserrors.ValidationError))
}

func TestRootInitialisesConfig(t *testing.T) {
	ci := fs.GetConfig(context.Background())
	oldLevel := ci.LogLevel
	defer func() { ci.LogLevel = oldLevel }()
	ci.LogLevel = fs.LogLevelNotice

	ran := false
	noop := &cobra.Command{
		Use: "noop",
		Run: func(command *cobra.Command, args []string) {
			ran = true
		},
	}
	Root.AddCommand(noop)
	defer Root.RemoveCommand(noop)

	Root.SetArgs([]string{"noop", "--log-level", "INFO"})
	require.NoError(t, Root.Execute())
	assert.True(t, ran)
	assert.Equal(t, fs.LogLevelInfo, ci.LogLevel)
	assert.NotNil(t, Root.PersistentFlags().Lookup("portal-url"))
	assert.NotNil(t, Root.PersistentFlags().Lookup("metrics-file"))
}
