package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/authcore-go/internal/cli/config"
)

type configView struct {
	Path string `json:"path"`
	config.CLIConfig
}

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration (file, environment and flags merged)",
				Action: configShow,
			},
			{
				Name:   "save",
				Usage:  "Write the effective configuration to the config file",
				Action: configSave,
			},
			{
				Name:   "path",
				Usage:  "Print the config file path",
				Action: configPath,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	return env.Print(configView{Path: env.ConfigPath, CLIConfig: *env.Config})
}

func configSave(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	if err := config.Save(env.Config, env.ConfigPath); err != nil {
		return err
	}
	fmt.Fprintf(env.Err, "configuration written to %s\n", env.ConfigPath)
	return nil
}

func configPath(c *cli.Context) error {
	env, err := envFrom(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, env.ConfigPath)
	return nil
}
