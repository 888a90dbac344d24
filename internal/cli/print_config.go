package cli

import (
	"github.com/taskgate/taskgate/internal/config"
)

// printConfig renders the resolved configuration and where it came from.
func printConfig(o *IO, cfg config.Config) error {
	formatted, err := config.Format(cfg)
	if err != nil {
		return err
	}

	o.Println(formatted)

	o.Println("")
	o.Println("# Sources:")

	if cfg.Sources.Global != "" {
		o.Println("#   global:", cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("#   project:", cfg.Sources.Project)
	}

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("#   (using defaults only)")
	}

	return nil
}
