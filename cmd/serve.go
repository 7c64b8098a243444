package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/nncert/nncert/envconfig"
	"github.com/nncert/nncert/hal"
	"github.com/nncert/nncert/server"
)

func ServeHandler(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("device")
	if name == "" {
		name = envconfig.Device()
	}

	device, err := hal.Open(name)
	if err != nil {
		return err
	}

	hostport := envconfig.Host().Host
	if h, _ := cmd.Flags().GetString("host"); h != "" {
		hostport = h
	}

	ln, err := net.Listen("tcp", hostport)
	if err != nil {
		return err
	}

	return server.Serve(ln, device)
}
