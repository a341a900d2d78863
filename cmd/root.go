package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the templatemail application
var rootCmd = &cobra.Command{
	Use:   "templatemail",
	Short: "Browse, AI-edit and send HTML email templates",
	Long: `templatemail manages a folder of HTML email templates. It previews them,
applies AI edits to their text with Gemini and sends them through Gmail or a
workflow webhook.

It can run as:
  - A local web UI (default)
  - A set of CLI commands
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// Global flags shared by every command.
var (
	debugMode    bool
	logJSON      bool
	templatesDir string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "templatemail version %s\n" .Version}}`)

	// If no subcommand is provided, start the web UI
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&templatesDir, "templates-dir", "", "Templates folder. Can also use TEMPLATES_DIR env var. (default \"Templates\")")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newTemplatesCmd())
	rootCmd.AddCommand(newRewriteCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
