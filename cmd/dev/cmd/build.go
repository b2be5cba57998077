package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

type platform struct {
	os   string
	arch string
}

// boards are the hosts ottoctl is deployed to besides workstations.
var boards = map[string]platform{
	"nanopi-neo": {os: "linux", arch: "arm"},
	"rpi4":       {os: "linux", arch: "arm64"},
}

func boardNames() string {
	names := make([]string, 0, len(boards))
	for name := range boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the ottoctl host tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			goos := cmd.Flag("os").Value.String()
			arch := cmd.Flag("arch").Value.String()
			version := cmd.Flag("version").Value.String()
			crossOs := cmd.Flag("cross-os").Value.String()
			crossArch := cmd.Flag("cross-arch").Value.String()
			if name := cmd.Flag("board").Value.String(); name != "" {
				p, ok := boards[name]
				if !ok {
					return fmt.Errorf("unknown board %q, known: %s", name, boardNames())
				}
				goos, arch = p.os, p.arch
			}

			// native builds use go build, anything else runs this command again in the
			// build image with the platform passed as the cross target
			if goos == runtime.GOOS && arch == runtime.GOARCH {
				if crossOs != "" && crossArch != "" {
					goos, arch = crossOs, crossArch
				}
				return build.GoBuild("dist/ottoctl", "./cmd/ottoctl", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     true,
					Arch:          arch,
					OS:            goos,
				})
			}
			if crossOs == "" || crossArch == "" {
				crossOs, crossArch = goos, arch
			}

			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", goos, arch),
				[]string{"build", "--version", version, "--cross-os", crossOs, "--cross-arch", crossArch},
				build.DockerBuildOpts{
					NoCache: noCache,
					Image:   "gophertribe/gobuild:1.25-bookworm",
				})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	cmd.Flags().String("board", "", "target board preset: "+boardNames())
	return cmd
}
