package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/statewire/internal/ir"
)

// Load error codes, shared by every command that reads a spec directory.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoMachines  = "E008" // No machine declarations
)

// LoadError is a failure to turn a directory into machine specs.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult holds the machines declared in one directory.
type LoadResult struct {
	Specs     []ir.MachineSpec
	CUEValue  cue.Value
	FileCount int
}

// LoadDir loads the CUE package in dir and compiles every machine under
// its "machine" field.
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	specs, err := CompileMachines(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if len(specs) == 0 {
		return nil, &LoadError{Code: ErrCodeNoMachines, Message: fmt.Sprintf("no machines declared in %s", dir)}
	}

	return &LoadResult{Specs: specs, CUEValue: value, FileCount: len(files)}, nil
}

// FindCUEFiles walks dir and returns every .cue file path.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Find returns the spec named machine.
func (r *LoadResult) Find(machine string) (ir.MachineSpec, bool) {
	for _, s := range r.Specs {
		if s.Name == machine {
			return s, true
		}
	}
	return ir.MachineSpec{}, false
}

// Names lists the loaded machines in declaration order.
func (r *LoadResult) Names() []string {
	names := make([]string, len(r.Specs))
	for i, s := range r.Specs {
		names[i] = s.Name
	}
	return names
}

func convertCompileError(err error) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Pos.IsValid() {
		return &LoadError{Code: ErrCodeGeneric, Message: ce.Field + ": " + ce.Message, Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}
