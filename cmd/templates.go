package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List and show templates",
	}
	cmd.AddCommand(newTemplatesListCmd())
	cmd.AddCommand(newTemplatesShowCmd())
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the .html templates in the templates folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			store := a.sc.Store()
			if !store.Exists() {
				return fmt.Errorf("the '%s' folder does not exist", store.Dir())
			}
			names, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "No HTML files found in the '%s' folder.\n", store.Dir())
				fmt.Fprintf(out, "Please add some .html files to the '%s' folder.\n", store.Dir())
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newTemplatesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print the raw HTML of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			content, err := a.sc.Store().Read(args[0])
			if err != nil {
				return fmt.Errorf("error reading file %s: %w", args[0], err)
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			return nil
		},
	}
}
