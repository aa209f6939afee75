// Command warectl is an operator tool for inspecting and maintaining
// the delivery warehouse.
// Usage: go run ./cmd/warectl <list|show|relink|prune> [args]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gioland/internal/config"
	"gioland/internal/definitions"
	"gioland/internal/warehouse"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: warectl <list|show|relink|prune> [args]")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	wh, err := warehouse.Open(cfg.Warehouse.Path)
	if err != nil {
		return fmt.Errorf("opening warehouse at %s: %w", cfg.Warehouse.Path, err)
	}
	defer func() { _ = wh.Close() }()

	switch os.Args[1] {
	case "list":
		return list(wh, os.Args[2:])
	case "show":
		return show(wh, os.Args[2:])
	case "relink":
		return relink(wh)
	case "prune":
		return prune(wh, os.Args[2:])
	default:
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

// list prints one line per parcel, newest first, optionally filtered
// by metadata key=value pairs given as arguments.
func list(wh *warehouse.Connector, args []string) error {
	filters := map[string]string{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("bad filter %q, want key=value", arg)
		}
		filters[key] = value
	}

	return wh.View(func(w *warehouse.Warehouse) error {
		parcels, err := w.AllParcels()
		if err != nil {
			return err
		}
		sort.Slice(parcels, func(i, j int) bool {
			return parcels[i].LastModified().After(parcels[j].LastModified())
		})
		for _, p := range parcels {
			if !matches(p.Metadata, filters) {
				continue
			}
			stage := p.Metadata[definitions.KeyStage]
			state := "sealed"
			if p.Uploading() {
				state = "uploading"
			}
			fmt.Printf("%s  %-6s  %-9s  %s\n", p.Name, stage, state, p.LastModified().Format(time.RFC3339))
		}
		return nil
	})
}

func matches(md, filters map[string]string) bool {
	for key, value := range filters {
		if md[key] != value {
			return false
		}
	}
	return true
}

// show dumps one parcel's metadata, files and history.
func show(wh *warehouse.Connector, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: warectl show <name>")
	}
	return wh.View(func(w *warehouse.Warehouse) error {
		p, err := w.GetParcel(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("name: %s\n", p.Name)
		keys := make([]string, 0, len(p.Metadata))
		for key := range p.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("  %s: %s\n", key, p.Metadata[key])
		}
		if len(p.PrevParcels) > 0 {
			fmt.Printf("merged from: %s\n", strings.Join(p.PrevParcels, ", "))
		}
		files, err := p.Files()
		if err != nil {
			return err
		}
		fmt.Printf("files (%d):\n", len(files))
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
		fmt.Printf("history (%d):\n", len(p.History))
		for _, item := range p.History {
			fmt.Printf("  #%d %s  %s  (%s)\n", item.ID, item.Time.Format(time.RFC3339), item.Title, item.Actor)
		}
		return nil
	})
}

// relink rebuilds the browse tree symlinks from scratch. Safe to run
// on a live warehouse: links are recreated before the old tree root is
// replaced.
func relink(wh *warehouse.Connector) error {
	return wh.Update("warectl", "relink", func(w *warehouse.Warehouse) error {
		if err := os.RemoveAll(w.TreePath()); err != nil {
			return fmt.Errorf("clearing tree: %w", err)
		}
		parcels, err := w.AllParcels()
		if err != nil {
			return err
		}
		linked := 0
		for _, p := range parcels {
			if err := p.LinkInTree(); err != nil {
				log.Printf("WARN: linking %s: %v", p.Name, err)
				continue
			}
			linked++
		}
		log.Printf("Relink complete: %d of %d parcels linked", linked, len(parcels))
		return nil
	})
}

// prune removes leftovers the workflow cannot see: parcel directories
// with no index entry (an aborted create, or a crash between index
// delete and directory removal) and chunked-upload scratch directories
// older than the age limit.
func prune(wh *warehouse.Connector, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	age := fs.Duration("age", 24*time.Hour, "remove scratch dirs older than this")
	dryRun := fs.Bool("dry-run", false, "report without deleting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cutoff := time.Now().Add(-*age)
	removed := 0
	err := wh.View(func(w *warehouse.Warehouse) error {
		parcels, err := w.AllParcels()
		if err != nil {
			return err
		}

		indexed := make(map[string]bool, len(parcels))
		for _, p := range parcels {
			indexed[p.Name] = true
		}
		dirs, err := os.ReadDir(w.ParcelsPath())
		if err != nil {
			return err
		}
		for _, entry := range dirs {
			if !entry.IsDir() || indexed[entry.Name()] {
				continue
			}
			dir := filepath.Join(w.ParcelsPath(), entry.Name())
			if *dryRun {
				fmt.Printf("would remove orphan %s\n", dir)
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				log.Printf("WARN: removing orphan %s: %v", dir, err)
				continue
			}
			removed++
		}

		for _, p := range parcels {
			entries, err := os.ReadDir(p.Path())
			if err != nil {
				log.Printf("WARN: reading %s: %v", p.Name, err)
				continue
			}
			for _, entry := range entries {
				if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "temp_") {
					continue
				}
				info, err := entry.Info()
				if err != nil || info.ModTime().After(cutoff) {
					continue
				}
				dir := filepath.Join(p.Path(), entry.Name())
				if *dryRun {
					fmt.Printf("would remove %s\n", dir)
					continue
				}
				if err := os.RemoveAll(dir); err != nil {
					log.Printf("WARN: removing %s: %v", dir, err)
					continue
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("Prune complete: %d directories removed", removed)
	return nil
}
