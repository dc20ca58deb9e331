package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docpack-go/internal/pack"
)

// topicFlags are the pack descriptor flags shared by ensure and search.
type topicFlags struct {
	domain    string
	version   string
	sources   []string
	subtopics []string
	language  string
}

// register binds the flags to cmd.
func (f *topicFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.domain, "domain", "", "Technology or product the pack documents")
	cmd.Flags().StringVar(&f.version, "version", "", "Documented version (default: latest)")
	cmd.Flags().StringSliceVar(&f.sources, "source", nil, "Documentation base URL; repeat for several sources")
	cmd.Flags().StringSliceVar(&f.subtopics, "subtopic", nil, "Keyword used to select pages; repeat for several")
	cmd.Flags().StringVar(&f.language, "lang", pack.DefaultLanguage, "Pack language")
	_ = cmd.MarkFlagRequired("source")
}

// topic returns the normalised descriptor.
func (f *topicFlags) topic() pack.Topic {
	return pack.Topic{
		Domain:    f.domain,
		Version:   f.version,
		Sources:   f.sources,
		Subtopics: f.subtopics,
	}.Normalize()
}
