package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "userdata-gateway",
		Short:         "Gateway HTTP para as configurações, estatísticas e tempos de cada usuário",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "arquivo YAML de configuração (opcional)")

	root.AddCommand(newServeCmd())
	return root
}
