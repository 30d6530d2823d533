package main

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skdltmxn/pdbmsf/pdb"
)

var (
	dumpFormat string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <pdb-file>",
	Short: "Dump all PDB information",
	Long: `Dump the container geometry, the PDB Info stream and the stream directory
in structured format.

Supported formats:
  - text: Human-readable text (default)
  - json: JSON format
  - yaml: YAML format`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format (text, json, yaml)")
}

type PDBDump struct {
	File         string            `json:"file" yaml:"file"`
	BlockSize    uint32            `json:"block_size" yaml:"block_size"`
	NumBlocks    uint32            `json:"num_blocks" yaml:"num_blocks"`
	Info         *InfoDump         `json:"info,omitempty" yaml:"info,omitempty"`
	NamedStreams []pdb.NamedStream `json:"named_streams" yaml:"named_streams"`
	Streams      []pdb.StreamInfo  `json:"streams" yaml:"streams"`
}

type InfoDump struct {
	Version     uint32   `json:"version" yaml:"version"`
	VersionName string   `json:"version_name" yaml:"version_name"`
	Signature   uint32   `json:"signature" yaml:"signature"`
	Age         uint32   `json:"age" yaml:"age"`
	GUID        string   `json:"guid" yaml:"guid"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`
}

func runDump(cmd *cobra.Command, args []string) error {
	pdbPath := args[0]

	switch dumpFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}

	f, err := openPDB(pdbPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dump, err := collectDump(f, pdbPath)
	if err != nil {
		return err
	}

	switch dumpFormat {
	case "json":
		encoder := json.NewEncoder(output)
		encoder.SetIndent("", "  ")
		return encoder.Encode(dump)
	case "yaml":
		encoder := yaml.NewEncoder(output)
		encoder.SetIndent(2)
		if err := encoder.Encode(dump); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return dumpText(dump)
	}
}

func collectDump(f *pdb.File, pdbPath string) (*PDBDump, error) {
	dump := &PDBDump{
		File:      pdbPath,
		BlockSize: f.BlockSize(),
		NumBlocks: f.NumBlocks(),
	}

	info, err := f.Info()
	if err != nil {
		logrus.WithError(err).Warn("PDB info stream unavailable")
	} else {
		dump.Info = &InfoDump{
			Version:     uint32(info.Version),
			VersionName: info.Version.String(),
			Signature:   info.Signature,
			Age:         info.Age,
			GUID:        info.GUID.String(),
		}
		for _, code := range info.Features {
			dump.Info.Features = append(dump.Info.Features, code.String())
		}

		if dump.NamedStreams, err = f.NamedStreams(); err != nil {
			return nil, fmt.Errorf("failed to list named streams: %w", err)
		}
	}

	if dump.Streams, err = streamTable(f); err != nil {
		return nil, err
	}
	return dump, nil
}

func dumpText(dump *PDBDump) error {
	fmt.Fprintln(output, "=== PDB Information ===")
	fmt.Fprintf(output, "PDB File: %s\n", dump.File)
	if dump.Info != nil {
		fmt.Fprintf(output, "Version: %s (%d)\n", dump.Info.VersionName, dump.Info.Version)
		fmt.Fprintf(output, "Signature: 0x%08X\n", dump.Info.Signature)
		fmt.Fprintf(output, "Age: %d\n", dump.Info.Age)
		fmt.Fprintf(output, "GUID: %s\n", dump.Info.GUID)
	}
	fmt.Fprintf(output, "Block Size: %d\n", dump.BlockSize)
	fmt.Fprintf(output, "Number of Blocks: %d\n", dump.NumBlocks)

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Named Streams ===")
	writeNamedStreams(output, dump.NamedStreams)

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Streams ===")
	writeStreams(output, dump.Streams)

	return nil
}
