package env

import (
	"io"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const DefaultEnvFile = ".env"

// UsageFormat renders one indented "KEY  description" line per variable.
const UsageFormat = `{{range .}}  {{usage_key .}}	{{usage_description .}}
{{end}}`

// LoadDotEnv loads DefaultEnvFile into the process environment. Variables
// that are already set win. A missing file is not an error.
func LoadDotEnv() {
	// nolint:errcheck // .env file is optional, failure is acceptable
	_ = godotenv.Load(DefaultEnvFile)
}

// InitConfig loads the .env file and fills every config from the environment.
func InitConfig(configs ...any) error {
	LoadDotEnv()

	if len(configs) == 0 {
		return errors.New("failed to envconfig.Process: no config given")
	}

	for _, config := range configs {
		if err := envconfig.Process("", config); err != nil {
			return errors.Wrap(err, "failed to envconfig.Process")
		}
	}

	return nil
}

// PrintUsage writes the variables declared by configs as an aligned table.
func PrintUsage(w io.Writer, configs ...any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, config := range configs {
		if err := envconfig.Usagef("", config, tw, UsageFormat); err != nil {
			return errors.Wrap(err, "failed to envconfig.Usagef")
		}
	}
	return errors.Wrap(tw.Flush(), "failed to flush usage")
}
