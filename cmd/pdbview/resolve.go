package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <pdb-file> <name>",
	Short: "Resolve a named stream to its index",
	Long: `Look up a stream name such as /names or /LinkInfo in the named stream map
of the PDB Info stream and print the stream index it refers to.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	f, err := openPDB(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	index, err := f.ResolveStream(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", args[1], err)
	}

	fmt.Fprintln(output, index)
	return nil
}

var extractCmd = &cobra.Command{
	Use:   "extract <pdb-file> <index|name>",
	Short: "Write the raw bytes of a stream",
	Long: `Write the content of one stream to the output. The stream is selected by
a name from the named stream map or, when no such name exists, by its
directory index.`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	f, err := openPDB(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	index, err := f.ResolveStream(args[1])
	if err != nil {
		n, perr := strconv.ParseUint(args[1], 10, 32)
		if perr != nil {
			return fmt.Errorf("failed to resolve %q: %w", args[1], err)
		}
		index = uint32(n)
	}

	s, err := f.OpenStream(index)
	if err != nil {
		return fmt.Errorf("failed to open stream %s: %w", args[1], err)
	}

	if _, err := s.WriteTo(output); err != nil {
		return fmt.Errorf("failed to extract stream %d: %w", s.Index(), err)
	}
	return nil
}
