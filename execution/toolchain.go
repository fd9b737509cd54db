// Package execution runs room code through a write, compile, run and
// cleanup pipeline, one isolated workspace per request.
package execution

import (
	"collab-lab/domain"
	"path/filepath"
	"regexp"
	"strings"
)

// Placeholders understood by command templates.
const (
	SourcePlaceholder   = "{source}"
	ArtifactPlaceholder = "{artifact}"
	WorkdirPlaceholder  = "{workdir}"
	ClassPlaceholder    = "{class}"
)

// Toolchain describes how one language is built and started. Compile is
// empty for interpreted languages.
type Toolchain struct {
	Language   domain.Language
	SourceFile string
	Artifact   string
	Compile    []string
	Run        []string
	// ResolvesClass means the run command needs {class}, found from the
	// compiler output.
	ResolvesClass bool
	// NamedByPublicClass names the source after the first public class,
	// javac refuses a public class in a file of another name.
	NamedByPublicClass bool
}

var publicClassPattern = regexp.MustCompile(`\bpublic\s+(?:(?:final|abstract|strictfp)\s+)*class\s+([A-Za-z_$][\w$]*)`)

func (t Toolchain) Compiled() bool {
	return len(t.Compile) > 0
}

// SourceFileFor is the file name the code is written to.
func (t Toolchain) SourceFileFor(code string) string {
	if !t.NamedByPublicClass {
		return t.SourceFile
	}
	match := publicClassPattern.FindStringSubmatch(code)
	if match == nil {
		return t.SourceFile
	}
	return match[1] + filepath.Ext(t.SourceFile)
}

// Binaries are the executables the default toolchains call.
type Binaries struct {
	Python string
	Node   string
	GCC    string
	GXX    string
	Javac  string
	Java   string
}

type Toolchains map[domain.Language]Toolchain

func DefaultToolchains(bin Binaries) Toolchains {
	return Toolchains{
		domain.Python: {
			Language:   domain.Python,
			SourceFile: "main.py",
			Run:        []string{bin.Python, SourcePlaceholder},
		},
		domain.JavaScript: {
			Language:   domain.JavaScript,
			SourceFile: "main.js",
			Run:        []string{bin.Node, SourcePlaceholder},
		},
		domain.C: {
			Language:   domain.C,
			SourceFile: "main.c",
			Artifact:   "main",
			Compile:    []string{bin.GCC, SourcePlaceholder, "-o", ArtifactPlaceholder},
			Run:        []string{ArtifactPlaceholder},
		},
		domain.Cpp: {
			Language:   domain.Cpp,
			SourceFile: "main.cpp",
			Artifact:   "main",
			Compile:    []string{bin.GXX, SourcePlaceholder, "-o", ArtifactPlaceholder},
			Run:        []string{ArtifactPlaceholder},
		},
		domain.Java: {
			Language:           domain.Java,
			SourceFile:         "Main.java",
			Compile:            []string{bin.Javac, "-verbose", "-d", WorkdirPlaceholder, SourcePlaceholder},
			Run:                []string{bin.Java, "-cp", WorkdirPlaceholder, ClassPlaceholder},
			ResolvesClass:      true,
			NamedByPublicClass: true,
		},
	}
}

// expand substitutes placeholders in every argument of a template.
func expand(template []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	replacer := strings.NewReplacer(pairs...)

	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = replacer.Replace(arg)
	}
	return args
}
