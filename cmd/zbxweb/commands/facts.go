package commands

import (
	"github.com/spf13/cobra"
)

func newFactsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Show the host facts a compilation would use",
		Long: `Show the host facts a compilation would use.

Facts are read from --facts or discovered under --facts-root:
  - OS family, name and release from etc/os-release
  - Architecture of the running binary
  - Host name
  - SELinux state from sys/fs/selinux`,
		Example: `  # Facts of the local host
  zbxweb facts

  # Facts of an image unpacked under /mnt/image, as JSON
  zbxweb facts --facts-root /mnt/image -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hf, err := a.loadFacts()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.outputFormat("yaml"), hf)
		},
	}

	f := cmd.Flags()
	f.String("facts", "", "host facts file (YAML or JSON)")
	f.String("facts-root", "/", "filesystem root facts are discovered under")
	f.String("node", "", "override the host name of the facts")
	return cmd
}
