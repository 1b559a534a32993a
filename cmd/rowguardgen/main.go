// Command rowguardgen generates guard descriptor files for record
// definitions (structs embedding rowguard.Base).
//
// Configuration is read from rowguard.yaml in the working directory,
// overridable with -config:
//
//	schema: ./schema
//	package: schema
//	output: ./schema
//
// With -watch the command keeps running and regenerates whenever a Go
// file under the schema directory changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/rowguard/rowguard/compiler/gen"
	"github.com/rowguard/rowguard/compiler/load"
)

type config struct {
	Schema     string   `yaml:"schema"`
	Package    string   `yaml:"package"`
	Output     string   `yaml:"output"`
	Types      []string `yaml:"types"`
	BuildFlags []string `yaml:"buildflags"`
	Workers    int      `yaml:"workers"`
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("rowguardgen: ")

	var (
		configPath = flag.String("config", "rowguard.yaml", "path to the config file")
		schema     = flag.String("schema", "", "schema package path (overrides config)")
		watch      = flag.Bool("watch", false, "regenerate on schema changes")
	)
	flag.Parse()

	cfg, err := readConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *schema != "" {
		cfg.Schema = *schema
	}
	if cfg.Schema == "" {
		log.Fatal("no schema path; set it in the config file or with -schema")
	}
	if cfg.Output == "" {
		cfg.Output = cfg.Schema
	}

	ctx := context.Background()
	if err := generate(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	if !*watch {
		return
	}
	if err := watchLoop(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func readConfig(path string) (*config, error) {
	cfg := &config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Flags alone can carry the whole configuration.
		return cfg, nil
	case err != nil:
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func generate(ctx context.Context, cfg *config) error {
	start := time.Now()
	specs, err := (&load.Config{
		Paths:      []string{cfg.Schema},
		Names:      cfg.Types,
		BuildFlags: cfg.BuildFlags,
	}).Load(ctx)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		pkg := cfg.Package
		if pkg == "" {
			pkg = spec.Package
		}
		g := gen.NewGenerator(gen.Config{
			Package: pkg,
			OutDir:  cfg.Output,
			Workers: cfg.Workers,
		})
		if err := g.Generate(ctx, spec.Schemas); err != nil {
			return err
		}
		log.Printf("generated %d records from %s in %s", len(spec.Schemas), spec.PkgPath, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// watchLoop regenerates on file system changes, debouncing bursts of
// events the way editors produce them.
func watchLoop(ctx context.Context, cfg *config) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(cfg.Schema); err != nil {
		return err
	}
	log.Printf("watching %s", cfg.Schema)

	var (
		debounce = time.NewTimer(0)
		pending  bool
	)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if !pending {
				pending = true
				debounce.Reset(250 * time.Millisecond)
			}
		case <-debounce.C:
			pending = false
			if err := generate(ctx, cfg); err != nil {
				// Keep watching; a half-saved schema should not kill
				// the watcher.
				log.Printf("generate: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: %v", err)
		}
	}
}

// relevant filters the watcher stream down to Go source edits, skipping
// the files this command writes itself.
func relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
		return false
	}
	return !strings.HasSuffix(name, "_guard.go")
}
