package main

import (
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/autobond/internal/common"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build details",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), versionFormat, currentBuild())
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "Output format: text or yaml")
}

// buildInfo is what the binary knows about itself
type buildInfo struct {
	Version   string `yaml:"version"`
	Build     string `yaml:"build"`
	Commit    string `yaml:"commit"`
	GoVersion string `yaml:"go"`
	Platform  string `yaml:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:   common.Version,
		Build:     common.Build,
		Commit:    common.GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func writeVersion(w io.Writer, format string, info buildInfo) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		if _, err := fmt.Fprintf(w, "autobond %s\n", common.GetFullVersion()); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "  go\t%s\n", info.GoVersion)
		fmt.Fprintf(tw, "  platform\t%s\n", info.Platform)
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q, expected text or yaml", format)
	}
}
