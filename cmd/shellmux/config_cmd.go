package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		printConfigHelp()
		return boolToExit(len(args) < 1)
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func printConfigHelp() {
	fmt.Print(`Usage: shellmux config <action> [flags]

Actions:
  check [--config path]   Validate the configuration and print its fingerprint
`)
}

func boolToExit(failed bool) int {
	if failed {
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := newFlagSet("config check")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
		return 1
	}

	source := cfg.SourcePath
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Printf("config OK: %s\n", source)
	if cfg.Fingerprint != "" {
		fmt.Printf("fingerprint: blake3:%s\n", cfg.Fingerprint)
	}

	names := make([]string, 0, len(cfg.Slots))
	for name := range cfg.Slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sc := cfg.Slots[name]
		var cands []string
		for _, argv := range sc.Candidates {
			cands = append(cands, strings.Join(argv, " "))
		}
		if len(cands) == 0 {
			cands = []string{"(default chain)"}
		}
		line := fmt.Sprintf("slot %s: %s", name, strings.Join(cands, " | "))
		if sc.Fallback != "" {
			line += " -> " + sc.Fallback
		}
		fmt.Println(line)
	}
	return 0
}
