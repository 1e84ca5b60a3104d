package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/mailrelay/internal"
	"github.com/dgellow/mailrelay/internal/config"
	"github.com/dgellow/mailrelay/internal/log"
)

var BuildVersion = "dev"

func printResult(result *config.ValidationResult) {
	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Println("Result: PASS")
	} else if len(result.Errors) == 0 {
		fmt.Println("Result: FAIL (warnings present)")
	} else {
		fmt.Println("Result: FAIL")
	}
}

func validateConfig() error {
	cfg, err := config.Parse(config.Environ())
	if err != nil {
		return err
	}
	result, err := config.Validate(cfg)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Println("Validating environment configuration")
	printResult(result)

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	envFile := flag.String("env-file", "", "path to a dotenv file (default: .env if present)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	validate := flag.Bool("validate", false, "validate configuration and exit")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (error, warn, info, debug, trace)")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.LogError("Failed to load env file: %v", err)
		os.Exit(1)
	}

	if *validate {
		if err := validateConfig(); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		var result *config.ValidationResult
		if errors.As(err, &result) {
			printResult(result)
		}
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting mailrelay", map[string]any{
		"version": BuildVersion,
	})

	ctx := context.Background()
	relay, err := internal.NewMailRelay(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create mail relay: %v", err)
		os.Exit(1)
	}

	if err := relay.Run(); err != nil {
		log.LogError("Server stopped with error: %v", err)
		os.Exit(1)
	}
}
