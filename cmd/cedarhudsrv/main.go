package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jypelle/cedarhud/internal/srv"
	"github.com/jypelle/cedarhud/internal/srv/config"
	"github.com/jypelle/cedarhud/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const configSuffix = "cedarhud"

func main() {

	// Logger
	logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true})

	mainCommand := filepath.Base(os.Args[0])

	// region Flags and Commands definition

	flags := pflag.NewFlagSet(mainCommand, pflag.ExitOnError)
	flags.SetInterspersed(false)

	// Debug Mode
	debugMode := flags.BoolP("debug", "d", false, "Enable debug mode")

	// Simulation Mode
	simulationMode := flags.BoolP("simulation", "s", false, "Enable simulation mode (no panel, desktop window)")

	// User config dir
	defaultConfigDir := "./." + configSuffix
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		defaultConfigDir = filepath.Join(userConfigDir, configSuffix)
	}
	configDir := flags.StringP("config", "c", defaultConfigDir, "Location of cedarhud config folder")

	// Usage
	flags.Usage = func() {
		fmt.Printf("\nUsage: %s [OPTIONS] [COMMAND]\n", mainCommand)
		fmt.Printf("\nA heads-up display for telescope guidance\n")
		fmt.Printf("\nOptions:\n")
		flags.PrintDefaults()
		fmt.Printf("\nCommands:\n")
		fmt.Printf("  run       Run server\n")
		fmt.Printf("  version   Show the version number\n")
		fmt.Printf("\nRun '%s COMMAND --help' for more information on a command.\n", mainCommand)
	}

	// run command
	runCmd := pflag.NewFlagSet("run", pflag.ExitOnError)
	brightness := runCmd.Int64("brightness", 0, "Panel brightness for this run, 1 to 255 (default: last saved value)")
	recordPath := runCmd.String("record", "", "Record the display to this video file")

	runCmd.Usage = func() {
		fmt.Printf("\nUsage: %s run [OPTIONS]\n", mainCommand)
		fmt.Printf("\nRun the server\n")
		fmt.Printf("\nOptions:\n")
		runCmd.PrintDefaults()
	}

	// version command
	versionCmd := pflag.NewFlagSet("version", pflag.ExitOnError)

	versionCmd.Usage = func() {
		fmt.Printf("\nUsage: %s version\n", mainCommand)
		fmt.Printf("\nShow the version information\n")
	}

	// endregion

	// region Flags and Commands Parsing
	flags.Parse(os.Args[1:])

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(0)
	}

	switch flags.Arg(0) {
	case "run":
		runCmd.Parse(flags.Args()[1:])
		if runCmd.NArg() > 0 {
			fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flags.Arg(0))
			runCmd.Usage()
			os.Exit(1)
		}
		if runCmd.Changed("brightness") && (*brightness < config.MinBrightness || *brightness > config.MaxBrightness) {
			fmt.Fprintf(os.Stderr, "\nBrightness must be between %d and %d, got %d\n", config.MinBrightness, config.MaxBrightness, *brightness)
			os.Exit(1)
		}
	case "version":
		versionCmd.Parse(flags.Args()[1:])
		if versionCmd.NArg() > 0 {
			fmt.Printf("\n\"%s %s\" accepts no arguments\n", mainCommand, flags.Arg(0))
			versionCmd.Usage()
			os.Exit(1)
		}
		fmt.Printf("Version %s\n", version.AppVersion.String())
		os.Exit(0)
	default:
		fmt.Printf("\n%s is not a %s command\n", flags.Arg(0), version.AppName)
		flags.Usage()
		os.Exit(1)
	}
	// endregion

	if *debugMode {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
		logrus.Printf("Debug mode activated")
	}

	// Create cedarhud server
	serverApp, err := srv.NewServerApp(*configDir, srv.Options{
		DebugMode:      *debugMode,
		SimulationMode: *simulationMode,
		Brightness:     *brightness,
		RecordPath:     *recordPath,
	})
	if err != nil {
		logrus.Errorf("Unable to create server: %v", err)
		os.Exit(1)
	}

	// Listen stop signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	if err = serverApp.Run(ctx); err != nil {
		logrus.Errorf("Server stopped on error: %v", err)
		stop()
		os.Exit(1)
	}
}
