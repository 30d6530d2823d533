package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <pdb-file>",
	Short: "Display PDB file information",
	Long:  `Display the PDB Info stream header, the container geometry and the feature codes of a PDB file.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	pdbPath := args[0]

	f, err := openPDB(pdbPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Info()
	if err != nil {
		return fmt.Errorf("failed to read PDB info: %w", err)
	}

	fmt.Fprintf(output, "PDB File: %s\n", pdbPath)
	writeHeader(output, info)
	fmt.Fprintf(output, "Block Size: %d\n", f.BlockSize())
	fmt.Fprintf(output, "Number of Blocks: %d\n", f.NumBlocks())

	numStreams, err := f.NumStreams()
	if err != nil {
		return fmt.Errorf("failed to read stream directory: %w", err)
	}
	fmt.Fprintf(output, "Number of Streams: %d\n", numStreams)
	fmt.Fprintf(output, "Named Streams: %d\n", len(info.NamedStreams.Names))

	features := make([]string, len(info.Features))
	for i, code := range info.Features {
		features[i] = code.String()
	}
	if len(features) == 0 {
		features = []string{"none"}
	}
	fmt.Fprintf(output, "Features: %s\n", strings.Join(features, ", "))

	return nil
}
