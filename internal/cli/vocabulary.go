package cli

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/regionkit/pkg/config"
	"github.com/matzehuels/regionkit/pkg/errors"
)

// vocabularyCommand creates the vocabulary command.
func (c *CLI) vocabularyCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "vocabulary [field]",
		Short: "List the accepted values of setup fields",
		Example: `  regionkit vocabulary
  regionkit vocabulary mergers
  regionkit vocabulary --json`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return vocabularyFields(config.Vocabulary()), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			vocab := config.Vocabulary()
			if len(args) == 1 {
				values, ok := vocab[args[0]]
				if !ok {
					return invalidField(args[0], vocab)
				}
				vocab = map[string][]string{args[0]: values}
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(vocab)
			}
			printVocabulary(vocab)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func vocabularyFields(vocab map[string][]string) []string {
	fields := make([]string, 0, len(vocab))
	for k := range vocab {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return fields
}

func printVocabulary(vocab map[string][]string) {
	key := lipgloss.NewStyle().Foreground(colorGray).Bold(true).Width(12)
	for _, field := range vocabularyFields(vocab) {
		values := make([]string, len(vocab[field]))
		for i, v := range vocab[field] {
			values[i] = StyleValue.Render(v)
		}
		printLine(key.Render(field) + " " + strings.Join(values, StyleDim.Render(", ")))
	}
}

func invalidField(field string, vocab map[string][]string) error {
	return errors.New(errors.ErrCodeInvalidInput, "unknown field %q (must be one of: %s)", field, strings.Join(vocabularyFields(vocab), ", "))
}
