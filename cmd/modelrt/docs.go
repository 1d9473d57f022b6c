package main

// General API documentation for swaggo. Regenerate ../../docs with
// `swag init -g cmd/modelrt/docs.go`.
//
// @title           modelrt API
// @version         1.0
// @description     HTTP API for a single local model runtime: load, lease sessions, stream generations.
//
// @contact.name   modelrt maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

import (
	"fmt"

	"github.com/spf13/cobra"

	"modelrt/docs"
)

func newOpenAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI (Swagger 2.0) document of the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), docs.SwaggerInfo.ReadDoc())
			return err
		},
	}
}
