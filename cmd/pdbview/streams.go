package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdbmsf/pdb"
)

var streamsCmd = &cobra.Command{
	Use:   "streams <pdb-file>",
	Short: "List the stream directory",
	Long: `List every stream of the MSF directory with its size and block count.

Streams registered in the named stream map are shown with their name.`,
	Args: cobra.ExactArgs(1),
	RunE: runStreams,
}

func runStreams(cmd *cobra.Command, args []string) error {
	f, err := openPDB(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	streams, err := streamTable(f)
	if err != nil {
		return err
	}
	writeStreams(output, streams)
	return nil
}

// streamTable lists the directory and labels the streams the named stream map
// knows about. A PDB whose info stream cannot be decoded is still listed.
func streamTable(f *pdb.File) ([]pdb.StreamInfo, error) {
	streams, err := f.Streams()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream directory: %w", err)
	}

	named, err := f.NamedStreams()
	if err != nil {
		logrus.WithError(err).Warn("named streams unavailable")
		return streams, nil
	}
	for _, ns := range named {
		if ns.Stream < uint32(len(streams)) {
			streams[ns.Stream].Name = ns.Name
		}
	}
	return streams, nil
}

func writeStreams(w io.Writer, streams []pdb.StreamInfo) {
	fmt.Fprintf(w, "%-7s %-10s %-7s %s\n", "Index", "Size", "Blocks", "Name")
	for _, s := range streams {
		size := fmt.Sprint(s.Size)
		if s.Nil {
			size = "nil"
		}
		fmt.Fprintf(w, "%-7d %-10s %-7d %s\n", s.Index, size, s.Blocks, s.Name)
	}
}
