package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ocrbox/internal/classification"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Inspect and teach the tag vocabulary",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tags known to an account scope",
	Args:  cobra.NoArgs,
	RunE:  runTagsList,
}

var tagsLearnCmd = &cobra.Command{
	Use:   "learn <filename>...",
	Short: "Learn tags from renamed output filenames",
	Long: `Teaches the vocabulary from filenames of the form [tag]_title or
[tag1][tag2]_title, exactly as if the outputs had been renamed in the outbox.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTagsLearn,
}

func init() {
	for _, c := range []*cobra.Command{tagsListCmd, tagsLearnCmd} {
		c.Flags().StringVar(&accountFlag, "account", "", "account scope (empty for the local inbox)")
		tagsCmd.AddCommand(c)
	}
	rootCmd.AddCommand(tagsCmd)
}

func openVocabulary(cmd *cobra.Command) (*app, *classification.Vocabulary, error) {
	a, err := openApp(cmd.Context(), cfg, appOptions{})
	if err != nil {
		return nil, nil, err
	}
	vocab, err := a.vocab.Scope(cmd.Context(), accountFlag, nil)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	return a, vocab, nil
}

func runTagsList(cmd *cobra.Command, _ []string) error {
	a, vocab, err := openVocabulary(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := vocab.Entries()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Name, string(e.Origin), formatTime(e.FirstSeen)})
	}
	cmd.Println(renderTable([]string{"Tag", "Origin", "First seen"}, rows, nil))
	return nil
}

func runTagsLearn(cmd *cobra.Command, args []string) error {
	a, vocab, err := openVocabulary(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var learned []string
	for _, name := range args {
		names, err := vocab.Learn(cmd.Context(), name)
		if err != nil {
			return err
		}
		learned = append(learned, names...)
	}
	if len(learned) == 0 {
		cmd.Println("No new tags.")
		return nil
	}
	cmd.Printf("Learned for %s: %s\n", accountLabel(accountFlag), strings.Join(learned, ", "))
	return nil
}
