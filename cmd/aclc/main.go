// Command aclc drives the animation compression library from the shell:
// compress raw clips, build tiered databases, validate artefacts, and
// sample poses for spot checks.
//
// Usage:
//
//	aclc compress  -settings s.yaml -out clip.acl clip.yaml...
//	aclc build-db  -settings s.yaml -out anims.adb clip.acl...
//	aclc sample    -time 0.5 clip.acl
//	aclc validate  artefact...
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/motionforge/acl/compress"
	"github.com/motionforge/acl/database"
	"github.com/motionforge/acl/internal/container"
	"github.com/motionforge/acl/runtime"
	"github.com/motionforge/acl/skeleton"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("ACLC_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "compress":
		err = cmdCompress(os.Args[2:])
	case "build-db":
		err = cmdBuildDB(os.Args[2:])
	case "sample":
		err = cmdSample(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failMark("error:"), err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: aclc <compress|build-db|sample|validate> [flags] args...")
}

func cmdCompress(args []string) error {
	fs := flag.NewFlagSet("compress", flag.ExitOnError)
	settingsPath := fs.String("settings", "", "settings YAML file")
	out := fs.String("out", "", "output file (single input) or directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("compress: no input clips")
	}

	settings, _, err := loadSettings(*settingsPath)
	if err != nil {
		return err
	}

	raws := make([]*skeleton.RawClip, fs.NArg())
	for i, path := range fs.Args() {
		if raws[i], err = loadClip(path); err != nil {
			return err
		}
	}

	bar := progressbar.Default(int64(len(raws)), "compressing")
	results, err := compress.BuildAll(raws, settings, nil)
	if err != nil {
		return err
	}

	for i, tracks := range results {
		path := outputPath(*out, fs.Arg(i), ".acl", fs.NArg() > 1)
		if err := os.WriteFile(path, tracks.Buf, 0o644); err != nil {
			return err
		}
		fmt.Printf("%s %s -> %s (%d bytes)\n", okMark("ok"), fs.Arg(i), path, len(tracks.Buf))
		tracks.Free()
		_ = bar.Add(1)
	}
	return nil
}

func cmdBuildDB(args []string) error {
	fs := flag.NewFlagSet("build-db", flag.ExitOnError)
	settingsPath := fs.String("settings", "", "settings YAML file")
	out := fs.String("out", "anims.adb", "output database file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("build-db: no input clips")
	}

	_, dbCfg, err := loadSettings(*settingsPath)
	if err != nil {
		return err
	}

	sources := make([]database.ClipSource, fs.NArg())
	for i, path := range fs.Args() {
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := container.Validate(buf, container.TagCompressedTracks, true); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		errs, err := database.ClipContributingErrors(buf)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sources[i] = database.ClipSource{Buf: buf, ContributingError: errs}
	}

	rewritten, db, err := database.Build(sources, dbCfg)
	if err != nil {
		return err
	}

	for i, buf := range rewritten {
		path := strings.TrimSuffix(fs.Arg(i), filepath.Ext(fs.Arg(i))) + ".db.acl"
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return err
		}
		fmt.Printf("%s rewrote %s\n", okMark("ok"), path)
	}

	blob := db.Write()
	if err := os.WriteFile(*out, blob, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s %s: %d clips, %d+%d chunks, %d bytes\n", okMark("ok"), *out,
		db.NumClips(), db.ChunkCount(database.TierMedium), db.ChunkCount(database.TierLow), len(blob))
	return nil
}

func cmdSample(args []string) error {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	sampleTime := fs.Float64("time", 0, "sample time in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("sample: exactly one compressed clip expected")
	}

	buf, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	var ctx runtime.Context
	if err := ctx.Initialize(buf); err != nil {
		return err
	}
	if err := ctx.Seek(float32(*sampleTime), runtime.RoundingNone); err != nil {
		return err
	}

	var pose posePrinter
	ctx.DecompressPose(&pose)
	return nil
}

func cmdValidate(args []string) error {
	failed := 0
	for _, path := range args {
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		err = container.Validate(buf, container.TagCompressedTracks, true)
		if err != nil {
			// Not a tracks artefact; try the database checks, which also
			// walk chunk structure.
			err = database.Validate(buf)
		}
		if err != nil {
			fmt.Printf("%s %s: %v\n", failMark("FAIL"), path, err)
			failed++
			continue
		}
		fmt.Printf("%s %s\n", okMark("ok"), path)
	}
	if failed > 0 {
		return fmt.Errorf("%d artefact(s) failed validation", failed)
	}
	return nil
}

func outputPath(out, in, ext string, multi bool) string {
	if out == "" {
		return strings.TrimSuffix(in, filepath.Ext(in)) + ext
	}
	if multi {
		base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ext
		return filepath.Join(out, base)
	}
	return out
}
