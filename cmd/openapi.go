package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/cobra"
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "OpenAPI document commands",
}

var openapiValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the OpenAPI document",
	Long:  `Load api/openapi.yml and validate it against the OpenAPI 3 specification`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateOpenAPISpec(openapiSpecPath)
	},
}

var openapiSpecPath string

func validateOpenAPISpec(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("spec file not found: %w", err)
	}

	ctx := context.Background()
	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: true}

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load spec: %w", err)
	}

	if err := doc.Validate(ctx); err != nil {
		return fmt.Errorf("spec validation failed: %w", err)
	}

	fmt.Printf("%s is valid (%d paths)\n", path, doc.Paths.Len())
	return nil
}

func init() {
	openapiValidateCmd.Flags().StringVar(&openapiSpecPath, "spec", "api/openapi.yml", "Path to the OpenAPI document")

	openapiCmd.AddCommand(openapiValidateCmd)

	rootCmd.AddCommand(openapiCmd)
}
