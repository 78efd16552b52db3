package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/annel0/blockroll/internal/entity"
	"github.com/annel0/blockroll/internal/game"
	"github.com/annel0/blockroll/internal/level"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/replay"
)

const usage = `Usage: level-cli <command> [flags] [args]

Commands:
  validate <level.yaml>...        check levels and print shortest solutions
  solve <level.yaml>              print the shortest solution
  generate [flags]                generate a solvable level (YAML to stdout or -o)
  play [-record out] <level.yaml> play from stdin: w/a/s/d, up/left/down/right or reset per line
  replay <level.yaml> <file>      re-simulate a recorded attempt`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	// CLI пишет только предупреждения
	logging.SetDefaultLogger(logging.NewWriterLogger("cli", os.Stderr, logging.WARN))

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "validate":
		err = runValidate(os.Stdout, args)
	case "solve":
		err = runSolve(os.Stdout, args)
	case "generate":
		err = runGenerate(os.Stdout, args)
	case "play":
		err = runPlay(os.Stdin, os.Stdout, args)
	case "replay":
		err = runReplay(os.Stdout, args)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "❌ Unknown command: %s\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func runValidate(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("validate: no level files")
	}
	failed := 0
	for _, path := range args {
		lvl, err := level.LoadFile(path)
		if err == nil {
			var sol []entity.Direction
			sol, err = lvl.Solve()
			if err == nil {
				fmt.Fprintf(w, "✅ %s (%s): solvable in %d moves\n", lvl.ID, lvl.Name, len(sol))
				continue
			}
		}
		failed++
		fmt.Fprintf(w, "❌ %s: %v\n", path, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d levels failed", failed, len(args))
	}
	return nil
}

func runSolve(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("solve: expected one level file")
	}
	lvl, err := level.LoadFile(args[0])
	if err != nil {
		return err
	}
	path, err := lvl.Solve()
	if err != nil {
		return err
	}
	layout, _ := lvl.Layout()
	fmt.Fprint(w, layout)
	fmt.Fprintf(w, "%d moves: %s\n", len(path), joinDirections(path))
	return nil
}

func runGenerate(w io.Writer, args []string) error {
	def := level.DefaultGeneratorOptions()
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	var (
		id        = fs.String("id", "generated", "level id")
		name      = fs.String("name", "", "level name")
		width     = fs.Int("w", def.Width, "width in cells (Z)")
		height    = fs.Int("h", def.Height, "height in cells (X)")
		seed      = fs.Int64("seed", 1, "noise seed")
		threshold = fs.Float64("threshold", def.Threshold, "floor threshold in [0,1]")
		minMoves  = fs.Int("min-moves", def.MinMoves, "minimal solution length")
		out       = fs.String("o", "", "output file (default stdout)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := def
	opts.ID, opts.Name = *id, *name
	opts.Width, opts.Height = *width, *height
	opts.Seed, opts.Threshold, opts.MinMoves = *seed, *threshold, *minMoves

	lvl, path, err := level.Generate(opts)
	if err != nil {
		return err
	}
	data, err := level.Marshal(lvl)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "✅ %s written, solvable in %d moves\n", *out, len(path))
	return nil
}

func runPlay(in io.Reader, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	record := fs.String("record", "", "write the attempt to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("play: expected one level file")
	}

	lvl, err := level.LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	s, err := game.NewSession("", lvl, game.Options{})
	if err != nil {
		return err
	}

	fmt.Fprint(w, render(lvl, s.Snapshot()))
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "reset" {
			if err := s.Reset(); err != nil {
				return err
			}
			fmt.Fprint(w, render(lvl, s.Snapshot()))
			continue
		}
		dir, err := entity.ParseDirection(line)
		if err != nil {
			fmt.Fprintf(w, "⚠️  %v\n", err)
			continue
		}
		if _, err := s.Move(dir); err != nil {
			fmt.Fprintf(w, "⛔ %s: %v\n", dir, err)
			continue
		}
		s.Complete()

		snap := s.Snapshot()
		fmt.Fprint(w, render(lvl, snap))
		if snap.GameOver {
			fmt.Fprintf(w, "🏁 level %s completed in %d moves\n", lvl.ID, snap.Moves)
			break
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if *record != "" {
		data, err := replay.Encode(s.Recording())
		if err != nil {
			return err
		}
		if err := os.WriteFile(*record, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(w, "💾 attempt saved to %s\n", *record)
	}
	return nil
}

func runReplay(w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("replay: expected level file and replay file")
	}
	lvl, err := level.LoadFile(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	rec, err := replay.Decode(data)
	if err != nil {
		return err
	}
	if rec.LevelID != "" && rec.LevelID != lvl.ID {
		return fmt.Errorf("replay: recorded on level %q, not %q", rec.LevelID, lvl.ID)
	}

	res, err := replay.Run(lvl, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "moves=%d pose=%s completed=%v\n", res.Moves, res.Pose, res.Completed)
	return nil
}

func joinDirections(dirs []entity.Direction) string {
	parts := make([]string, len(dirs))
	for i, d := range dirs {
		parts[i] = d.String()
	}
	return strings.Join(parts, " ")
}
