package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"doomcover/internal/config"
	"doomcover/pkg/utils"
)

type action int

const (
	actionRun action = iota
	actionHelp
	actionInitConfig
)

// errUsage marks command-line mistakes; they exit like configuration errors.
var errUsage = errors.New("usage error")

type cliArgs struct {
	cfg        config.Config
	configPath string
	action     action
}

// parseArgs parses command-line arguments and loads configuration.
// Priority: CLI flags > environment > config file > defaults
func parseArgs(args []string) (cliArgs, error) {
	if len(args) == 0 {
		return cliArgs{action: actionHelp}, fmt.Errorf("%w: missing <band> and <album>", errUsage)
	}

	// Everything after "--" is positional, so names may start with a dash.
	var rest []string
	if i := slices.Index(args, "--"); i >= 0 {
		args, rest = args[:i], args[i+1:]
	}

	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return cliArgs{action: actionHelp}, nil
		}
		if arg == "--init-config" {
			return cliArgs{action: actionInitConfig}, nil
		}
	}

	var configPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" || args[i] == "-c" {
			if i+1 >= len(args) {
				return cliArgs{}, fmt.Errorf("%w: --config requires a path argument", errUsage)
			}
			configPath = args[i+1]
			break
		}
	}

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		return cliArgs{}, fmt.Errorf("failed to load config: %w", err)
	}
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%w: %s requires an argument", errUsage, arg)
			}
			i++
			return args[i], nil
		}

		switch arg {
		case "--verbose", "-v":
			cfg.Verbose = true

		case "--no-show":
			cfg.NoShow = true

		case "--output", "-o":
			v, err := value()
			if err != nil {
				return cliArgs{}, err
			}
			if !utils.IsImageFile(v) {
				return cliArgs{}, fmt.Errorf("%w: --output must end in .png, .jpg, .gif, .bmp or .tiff: %s", errUsage, v)
			}
			cfg.Output = v

		case "--embed":
			v, err := value()
			if err != nil {
				return cliArgs{}, err
			}
			if !utils.IsAudioFile(v) {
				return cliArgs{}, fmt.Errorf("%w: --embed needs an audio file: %s", errUsage, v)
			}
			cfg.Embed = v

		case "--seed":
			v, err := value()
			if err != nil {
				return cliArgs{}, err
			}
			seed, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return cliArgs{}, fmt.Errorf("%w: invalid seed value: %s", errUsage, v)
			}
			cfg.Seed = seed

		case "--config", "-c":
			i++

		default:
			if len(arg) > 1 && arg[0] == '-' {
				return cliArgs{}, fmt.Errorf("%w: unknown flag: %s", errUsage, arg)
			}
			positional = append(positional, arg)
		}
	}
	positional = append(positional, rest...)

	switch len(positional) {
	case 2:
		cfg.Band, cfg.Album = positional[0], positional[1]
	case 0, 1:
		return cliArgs{}, fmt.Errorf("%w: expected <band> and <album>", errUsage)
	default:
		return cliArgs{}, fmt.Errorf("%w: unexpected argument %q (quote names that contain spaces)", errUsage, positional[2])
	}

	return cliArgs{cfg: cfg, configPath: configPath}, nil
}

// initConfigFile creates a new config file with default values
func initConfigFile() error {
	path := config.GetDefaultConfigPath()

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at: %s\n", path)
		fmt.Println("Delete it first if you want to recreate it.")
		return nil
	}

	cfg := config.DefaultConfig()

	if err := config.SaveConfigFile(cfg, path); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	fmt.Printf("Created default config file at: %s\n", path)
	fmt.Println("\nEdit it to add your API credentials and customize settings.")
	fmt.Println("Available options:")
	fmt.Println("  flickr_api_key, flickr_api_secret: Flickr API credentials")
	fmt.Println("  clarifai_client_id, clarifai_client_secret: Clarifai API credentials")
	fmt.Println("  fonts_dir: directory of .ttf/.otf fonts (default: ./fonts)")
	fmt.Println("  tags: list of search tags")
	fmt.Println("  confidence_threshold: between 0.0 and 1.0, exclusive (default: 0.8)")
	fmt.Println("  max_attempts: photo attempts before giving up (default: 10)")
	fmt.Println("  exclude_rejected_tags: true/false (drop tags whose photo was rejected)")
	fmt.Println("  text_color: #rrggbb or #rrggbbaa (default: #ffffff)")
	return nil
}

// printUsage displays the help message
func printUsage() {
	fmt.Println("doomcover - Generate a random album cover from Flickr photos")
	fmt.Println()
	fmt.Println("Usage: doomcover [options] [--] <band> <album>")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -v, --verbose              Show detailed output")
	fmt.Println("  -o, --output <file>        Save the cover (png, jpg, gif, bmp, tiff)")
	fmt.Println("      --no-show              Do not open the cover in an image viewer")
	fmt.Println("      --embed <audio file>   Embed the cover and band/album tags into an audio file")
	fmt.Println("      --seed <n>             Seed the random choices for a reproducible cover")
	fmt.Println("  -c, --config <path>        Path to config file")
	fmt.Println("  -h, --help                 Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  --init-config              Create a default config file")
	fmt.Println()
	fmt.Println("Config file locations (checked in order):")
	fmt.Println("  ./doomcover.yaml")
	fmt.Println("  ~/.config/doomcover/config.yaml")
	fmt.Println("  ~/.doomcover.yaml")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  FLICKR_API_KEY, FLICKR_API_SECRET, CLARIFAI_CLIENT_ID, CLARIFAI_CLIENT_SECRET")
	fmt.Println("  override the credentials from the config file.")
	fmt.Println()
	fmt.Println("Logging:")
	fmt.Println("  Normal mode: Progress bar shown, detailed logs saved to:")
	fmt.Println("    ~/.local/share/doomcover/logs/")
	fmt.Println("  Verbose mode: All output to stdout, no progress bar")
	fmt.Println()
	fmt.Println("Exit status: 0 success, 1 generation failed, 2 configuration or usage error")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Generate a cover and open it")
	fmt.Println("  doomcover \"Inferno\" \"Ashes\"")
	fmt.Println()
	fmt.Println("  # Save a reproducible cover without opening it")
	fmt.Println("  doomcover --seed 1234 --no-show -o ashes.png Inferno Ashes")
	fmt.Println()
	fmt.Println("  # Tag an audio file with the generated cover")
	fmt.Println("  doomcover --embed track01.mp3 Inferno Ashes")
}
