// Command wineasio-settings edits the driver settings file. It is the
// executable the driver's control-panel operation spawns; without a GUI
// toolkit it is a plain flag-driven editor.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/wineasio/wineasio-go/pkg/config"
)

func main() {
	var (
		inputs     = pflag.Int32("inputs", 0, "number of input channels (1-128)")
		outputs    = pflag.Int32("outputs", 0, "number of output channels (1-128)")
		buffersize = pflag.Int32("buffersize", 0, "preferred buffer size in frames (16-8192)")
		fixed      = pflag.Bool("fixed", false, "report a fixed buffer size to hosts")
		connect    = pflag.Bool("connect-hardware", true, "auto-connect ports to hardware")
		name       = pflag.String("name", "", "backend client name")
		path       = pflag.String("config", "", "settings file (default: the driver's search path)")
		show       = pflag.Bool("show", false, "print the current settings and exit")
	)
	pflag.Parse()

	file := *path
	if file == "" {
		file = config.Path()
	}

	cfg := config.LoadFile(file)

	if !*show {
		if pflag.CommandLine.Changed("inputs") {
			cfg.NumInputs = *inputs
		}
		if pflag.CommandLine.Changed("outputs") {
			cfg.NumOutputs = *outputs
		}
		if pflag.CommandLine.Changed("buffersize") {
			cfg.PreferredBufsize = *buffersize
		}
		if pflag.CommandLine.Changed("fixed") {
			cfg.FixedBufsize = *fixed
		}
		if pflag.CommandLine.Changed("connect-hardware") {
			cfg.Autoconnect = *connect
		}
		if pflag.CommandLine.Changed("name") {
			cfg.ClientName = *name
		}
		cfg.Normalize()

		if err := config.SaveFile(file, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "wineasio-settings: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("settings file:        %s\n", file)
	fmt.Printf("number of inputs:     %d\n", cfg.NumInputs)
	fmt.Printf("number of outputs:    %d\n", cfg.NumOutputs)
	fmt.Printf("preferred buffersize: %d\n", cfg.PreferredBufsize)
	fmt.Printf("fixed buffersize:     %v\n", cfg.FixedBufsize)
	fmt.Printf("connect to hardware:  %v\n", cfg.Autoconnect)
	fmt.Printf("client name:          %s\n", cfg.ClientName)
}
