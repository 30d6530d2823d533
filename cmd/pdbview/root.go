package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdbmsf/pdb"
)

var (
	outputFile  string
	logLevel    string
	cacheBlocks int
	output      io.Writer
)

var rootCmd = &cobra.Command{
	Use:   "pdbview [pdb-file]",
	Short: "PDB container viewer",
	Long: `pdbview is a command-line tool for inspecting the MSF container of
Microsoft PDB (Program Database) files.

It lists the streams of a PDB, decodes the PDB Info stream and resolves
named streams such as /names or /LinkInfo to their stream index.

Given only a file, it prints a summary of the PDB.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logrus.SetLevel(level)
		logrus.SetOutput(cmd.ErrOrStderr())

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = cmd.OutOrStdout()
		}
		return nil
	},
	RunE: runSummary,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&cacheBlocks, "cache-blocks", 0, "number of blocks to keep in the read cache (0 disables)")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(extractCmd)
}

// execute runs the command line and closes the -o file whether or not the
// command succeeded. cobra skips post-run hooks after a RunE error.
func execute() error {
	err := rootCmd.Execute()
	if cerr := closeOutput(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func closeOutput() error {
	f, ok := output.(*os.File)
	output = nil
	if !ok || f == os.Stdout {
		return nil
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

func openPDB(path string) (*pdb.File, error) {
	f, err := pdb.Open(path,
		pdb.WithLogger(logrus.StandardLogger()),
		pdb.WithBlockCache(cacheBlocks),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDB: %w", err)
	}
	return f, nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
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

	named, err := f.NamedStreams()
	if err != nil {
		return fmt.Errorf("failed to list named streams: %w", err)
	}
	writeNamedStreams(output, named)
	return nil
}

func writeHeader(w io.Writer, info *pdb.Info) {
	fmt.Fprintf(w, "Version: %s (%d)\n", info.Version, uint32(info.Version))
	fmt.Fprintf(w, "Signature: 0x%08X\n", info.Signature)
	fmt.Fprintf(w, "Age: %d\n", info.Age)
	fmt.Fprintf(w, "GUID: %s\n", info.GUID)
}

func writeNamedStreams(w io.Writer, named []pdb.NamedStream) {
	fmt.Fprintf(w, "Named Streams: %d\n", len(named))
	for _, ns := range named {
		fmt.Fprintf(w, "  %s -> %d\n", ns.Name, ns.Stream)
	}
}
