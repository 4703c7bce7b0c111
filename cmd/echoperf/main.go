package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/echoperf/cmd/echoperf/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Certs   commands.CertsCmd   `cmd:"" help:"Generate the root CA and echo.test leaf certificate fixtures"`
		Server  commands.ServerCmd  `cmd:"" help:"Run the TLS echo test service"`
		Client  commands.ClientCmd  `cmd:"" help:"Run the echo perf client"`
		Inspect commands.InspectCmd `cmd:"" help:"Print the generated fixtures"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
