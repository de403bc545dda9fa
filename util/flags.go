package util

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to upper-cased flag names when looking up environment overrides
const EnvPrefix = "PARLEY_"

// SetFlagsFromEnvVars fills flags of cmd that were not given on the command
// line. A systemd credential named after the flag (PRIVATE_KEY) is tried
// first, then the PARLEY_ prefixed environment variable (PARLEY_PRIVATE_KEY).
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	credsDir := os.Getenv("CREDENTIALS_DIRECTORY")

	for _, flags := range []*pflag.FlagSet{cmd.PersistentFlags(), cmd.LocalNonPersistentFlags()} {
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				return
			}
			applyFlagOverride(flags, f.Name, credsDir)
		})
	}
}

func applyFlagOverride(flags *pflag.FlagSet, flagName, credsDir string) {
	name := flagNameToUpper(flagName)

	if credsDir != "" {
		if data, err := os.ReadFile(filepath.Join(credsDir, name)); err == nil {
			err = flags.Set(flagName, strings.TrimSuffix(string(data), "\n"))
			if err == nil {
				return
			}
			log.Infof("unable to configure flag %s using credential %s: %v", flagName, name, err)
		}
	}

	value, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	if err := flags.Set(flagName, value); err != nil {
		log.Infof("unable to configure flag %s using variable %s: %v", flagName, EnvPrefix+name, err)
	}
}

// flagNameToUpper turns private-key into PRIVATE_KEY
func flagNameToUpper(cmdFlag string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
