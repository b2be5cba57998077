package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/marcinbor85/gohex"
	"github.com/spf13/cobra"
)

const firmwarePackage = "./cmd/firmware"

// flashBase is where the STM32F1 maps its internal flash.
const flashBase = 0x0800_0000

// checkImage reads an Intel HEX image and fails when it does not fit the flash.
func checkImage(r io.Reader, flashSize uint32) (uint32, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return 0, fmt.Errorf("invalid firmware image: %w", err)
	}
	var used uint32
	for _, seg := range mem.GetDataSegments() {
		end := seg.Address + uint32(len(seg.Data))
		if seg.Address < flashBase || end > flashBase+flashSize {
			return 0, fmt.Errorf("segment %#08x..%#08x outside flash", seg.Address, end)
		}
		slog.Debug("Image segment", "address", fmt.Sprintf("%#08x", seg.Address), "size", len(seg.Data))
		used += uint32(len(seg.Data))
	}
	return used, nil
}

func reportImage(path string, flashSize uint32) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open image: %w", err)
	}
	defer func() { _ = f.Close() }()
	used, err := checkImage(f, flashSize)
	if err != nil {
		return err
	}
	slog.Info("Firmware built", "output", path, "used", used, "flash", flashSize,
		"percent", fmt.Sprintf("%.1f", 100*float64(used)/float64(flashSize)))
	return nil
}

// run executes tool with output attached to the terminal.
func run(cmd *cobra.Command, tool string, args ...string) error {
	if _, err := exec.LookPath(tool); err != nil {
		slog.Error("tool not found in PATH", "tool", tool)
		return fmt.Errorf("%s not installed: %w", tool, err)
	}
	slog.Info("Running "+tool, "args", args)
	c := exec.CommandContext(cmd.Context(), tool, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

func tinygo(cmd *cobra.Command, args ...string) error {
	err := run(cmd, "tinygo", args...)
	if errors.Is(err, exec.ErrNotFound) {
		slog.Info("See https://tinygo.org/getting-started/install/")
	}
	return err
}

func FirmwareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firmware",
		Short: "Build the controller firmware image",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := cmd.Flags().GetString("target")
			if err != nil {
				return fmt.Errorf("could not get target flag: %w", err)
			}
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("could not get output flag: %w", err)
			}
			flashSize, err := cmd.Flags().GetUint32("flash-size")
			if err != nil {
				return fmt.Errorf("could not get flash-size flag: %w", err)
			}
			if err := tinygo(cmd, "build", "-target", target, "-o", output, firmwarePackage); err != nil {
				return fmt.Errorf("failed to build firmware: %w", err)
			}
			if filepath.Ext(output) != ".hex" {
				slog.Info("Firmware built", "output", output)
				return nil
			}
			return reportImage(output, flashSize)
		},
	}
	cmd.Flags().String("target", "bluepill", "tinygo target")
	cmd.Flags().String("output", "dist/otto.hex", "firmware image")
	cmd.Flags().Uint32("flash-size", 64*1024, "flash size of the target chip in bytes")
	return cmd
}

func FlashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Build and flash the controller firmware",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := cmd.Flags().GetString("target")
			if err != nil {
				return fmt.Errorf("could not get target flag: %w", err)
			}
			programmer, err := cmd.Flags().GetString("programmer")
			if err != nil {
				return fmt.Errorf("could not get programmer flag: %w", err)
			}
			if err := tinygo(cmd, "flash", "-target", target, "-programmer", programmer, firmwarePackage); err != nil {
				return fmt.Errorf("failed to flash firmware: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("target", "bluepill", "tinygo target")
	cmd.Flags().String("programmer", "stlink-v2", "openocd programmer")
	return cmd
}
