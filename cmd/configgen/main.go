// configgen generates viper-backed configuration structs from .config
// files, the same declarative format the teacher's predecessor (envgen)
// used, now targeting replisync.Config-style sections instead of a
// generic game-config DSL.
//
// Usage:
//
//	configgen -input=room.config -go=room_config_gen.go
//
// Config file format:
//
//	package server
//
//	config RoomLimits {
//	    MaxEntitiesPerRoom  int32   @default(512)  @min(1)    @max(4096)
//	    MaxUsersPerRoom     int32   @default(64)   @min(1)    @max(256)
//	    ScopeRadius         float64 @default(50.0) @min(1.0)
//	}
//
// Annotations:
//
//	@default(value)  - default value, also the value SetDefaults installs
//	@min(value)      - minimum value (for numbers); enforced by Validate
//	@max(value)      - maximum value (for numbers); enforced by Validate
//	@env(NAME)       - parsed into the field definition; the generated
//	                   code binds no environment variable
//	@required        - parsed into the field definition; the generated
//	                   Validate does not check it
//
// Generated Go code decodes into the struct via viper's Unmarshal (the
// way replisync.LoadConfig does for the core Config), with mapstructure
// tags matching each field name, a SetDefaults(*viper.Viper) function
// seeding every @default, and a Validate() method enforcing @min/@max.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	inputFile = flag.String("input", "", "input .config file (required)")
	goOutput  = flag.String("go", "", "Go output file name; default srcdir/<pkg>_config_gen.go")
)

func main() {
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "configgen: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configgen: cannot open input file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	config, err := Parse(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configgen: parse error: %v\n", err)
		os.Exit(1)
	}

	if config.Package == "" {
		base := filepath.Base(*inputFile)
		config.Package = strings.TrimSuffix(base, filepath.Ext(base))
	}

	goCode, err := GenerateGo(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configgen: Go generation error: %v\n", err)
		os.Exit(1)
	}

	outputName := *goOutput
	if outputName == "" {
		outputName = filepath.Join(filepath.Dir(*inputFile), config.Package+"_config_gen.go")
	}
	if err := os.WriteFile(outputName, goCode, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: cannot write Go output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated: %s\n", outputName)
}
