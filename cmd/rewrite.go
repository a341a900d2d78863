package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/templatemail/internal/logging"
	"github.com/teemow/templatemail/internal/rewrite"
)

func newRewriteCmd() *cobra.Command {
	var (
		instruction string
		printHTML   bool
	)

	cmd := &cobra.Command{
		Use:   "rewrite <name>",
		Short: "Apply an AI edit to a template and save it as a new file",
		Long: `Ask Gemini to change the text of a template while keeping its layout.
The result is saved next to the original as
<name>_ai_edited_<YYYYMMDD_HHMMSS>.html; the original is never modified.

Requires GEMINI_API_KEY.`,
		Example: `  templatemail rewrite welcome.html -i "change the greeting to Hello Sam"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, args[0], instruction, printHTML)
		},
	}

	cmd.Flags().StringVarP(&instruction, "instruction", "i", "", "Description of the changes you want")
	cmd.Flags().BoolVar(&printHTML, "print", false, "Print the edited HTML to stdout")

	return cmd
}

func runRewrite(cmd *cobra.Command, name, instruction string, printHTML bool) error {
	a, err := newApp(cmd.Context(), cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if strings.TrimSpace(instruction) == "" {
		return rewrite.ErrEmptyInstruction
	}
	if !a.cfg.HasGeminiKey() {
		return errors.New("Gemini API key not set in environment variables. Please set GEMINI_API_KEY in the .env file.")
	}

	original, err := a.sc.Store().Read(name)
	if err != nil {
		return fmt.Errorf("error reading file %s: %w", name, err)
	}

	logging.WithTemplate(logging.WithOperation(a.logger, "cli.rewrite"), name).
		Debug("requesting AI edit", slog.Int("instruction_chars", len(instruction)))

	result, err := a.sc.Rewriter().Rewrite(cmd.Context(), rewrite.Request{
		TemplateName: name,
		Original:     original,
		Instruction:  instruction,
	})
	if err != nil {
		if errors.Is(err, rewrite.ErrSaveFailed) && printHTML && result != nil {
			fmt.Fprintln(cmd.OutOrStdout(), result.HTML)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if printHTML {
		fmt.Fprintln(out, result.HTML)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved AI-modified template as: %s\n", result.SavedAs)
	return nil
}
