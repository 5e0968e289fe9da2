package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/statewire/internal/compiler"
)

// loadSpecs loads a specs directory, reporting failures through f.
func loadSpecs(f *OutputFormatter, dir string) (*compiler.LoadResult, error) {
	loaded, err := compiler.LoadDir(dir)
	if err != nil {
		var le *compiler.LoadError
		if errors.As(err, &le) {
			details := map[string]any(nil)
			if le.Pos.IsValid() {
				details = map[string]any{
					"file":   le.Pos.Filename(),
					"line":   le.Pos.Line(),
					"column": le.Pos.Column(),
				}
			}
			return nil, f.Fail(ExitCommandError, le.Code, le.Message, details)
		}
		return nil, f.Fail(ExitCommandError, compiler.ErrCodeGeneric, err.Error(), nil)
	}
	f.VerboseLog("Found %d CUE file(s) in %s: %v", loaded.FileCount, dir, loaded.Names())
	return loaded, nil
}

// buildMachine loads dir and builds the named machine. With an empty name
// the directory must declare exactly one machine.
func buildMachine(f *OutputFormatter, dir, name string) (*compiler.BuildResult, error) {
	loaded, err := loadSpecs(f, dir)
	if err != nil {
		return nil, err
	}

	if name == "" {
		if len(loaded.Specs) != 1 {
			return nil, f.Fail(ExitCommandError, ErrCodeUnknownMachine,
				fmt.Sprintf("%s declares %d machines %v; choose one with --machine", dir, len(loaded.Specs), loaded.Names()), nil)
		}
		name = loaded.Specs[0].Name
	}

	spec, ok := loaded.Find(name)
	if !ok {
		return nil, f.Fail(ExitCommandError, ErrCodeUnknownMachine,
			fmt.Sprintf("machine %q not declared in %s (have %v)", name, dir, loaded.Names()), nil)
	}

	res := compiler.Build(spec)
	if !res.OK() {
		return nil, f.Fail(ExitCommandError, ErrCodeDiagnostics,
			fmt.Sprintf("machine %s has %d diagnostic(s)", res.Machine, len(res.Diagnostics)), res.Diagnostics)
	}
	return res, nil
}
