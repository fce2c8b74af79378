package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/oisee/asm816/pkg/addr"
	"github.com/oisee/asm816/pkg/asm"
	"github.com/oisee/asm816/pkg/cpu"
	"github.com/oisee/asm816/pkg/dis"
	"github.com/oisee/asm816/pkg/rom"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "asm816",
		Short: "65816 assembler and disassembler",
	}
	// glog's -v / -logtostderr flags.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	var romPath string
	var output string
	var dryRun bool

	asmCmd := &cobra.Command{
		Use:   "assemble [flags] file.asm...",
		Short: "Assemble .asm modules over a ROM image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := rom.LoadRomFile(romPath)
			if err != nil {
				return err
			}

			assembler := asm.NewAssembler()
			for _, path := range args {
				if err := assembler.AddAsmFile(path); err != nil {
					return err
				}
			}

			if dryRun {
				sink := rom.NewIdentitySink(image)
				if err := assembler.Assemble(sink); err != nil {
					return err
				}
				fmt.Println("assembly matches the existing ROM")
				return nil
			}

			sink := rom.NewOverwriter(image)
			if err := assembler.Assemble(sink); err != nil {
				return err
			}
			if output == "" {
				output = romPath
			}
			if err := sink.CreateFile(output); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", output)
			return nil
		},
	}
	asmCmd.Flags().StringVar(&romPath, "rom", "", "ROM image to assemble over")
	asmCmd.Flags().StringVar(&output, "output", "", "output ROM path (defaults to --rom)")
	asmCmd.Flags().BoolVar(&dryRun, "identity", false,
		"require assembled bytes to match the existing ROM")
	asmCmd.MarkFlagRequired("rom")
	rootCmd.AddCommand(asmCmd)

	var seedSpecs []string

	disCmd := &cobra.Command{
		Use:   "disassemble [flags]",
		Short: "Disassemble a ROM image from seed addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := rom.LoadRomFile(romPath)
			if err != nil {
				return err
			}
			seeds, err := parseSeeds(seedSpecs)
			if err != nil {
				return err
			}
			d := dis.NewDisassembler(image)
			result, err := d.Disassemble(seeds...)
			if err != nil {
				return err
			}
			fmt.Print(result.String())
			return nil
		},
	}
	disCmd.Flags().StringVar(&romPath, "rom", "", "ROM image to disassemble")
	disCmd.Flags().StringArrayVar(&seedSpecs, "seed", nil,
		"seed as address:mode, e.g. $80a9c3:m8x8")
	disCmd.MarkFlagRequired("rom")
	disCmd.MarkFlagRequired("seed")
	rootCmd.AddCommand(disCmd)

	defer glog.Flush()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseSeeds converts "address:mode" specs into disassembly seeds.
func parseSeeds(specs []string) ([]dis.Seed, error) {
	var seeds []dis.Seed
	for _, spec := range specs {
		addressPart, modePart, found := strings.Cut(spec, ":")
		if !found {
			return nil, fmt.Errorf("seed %q is not of the form address:mode", spec)
		}
		addressPart = strings.TrimPrefix(addressPart, "$")
		addressPart = strings.TrimPrefix(addressPart, "0x")
		value, err := strconv.ParseInt(addressPart, 16, 32)
		if err != nil || value < 0 || value >= addr.SpaceSize {
			return nil, fmt.Errorf("seed %q has a bad address", spec)
		}
		flags, ok := cpu.FromName(modePart)
		if !ok {
			return nil, fmt.Errorf("seed %q has a bad mode name", spec)
		}
		seeds = append(seeds, dis.Seed{Address: addr.FromInt(int(value)), Flags: flags})
	}
	return seeds, nil
}
