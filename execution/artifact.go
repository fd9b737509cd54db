package execution

import (
	"bufio"
	cerrors "collab-lab/errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// javac -verbose reports each class file it writes on stderr:
//
//	[wrote RegularFileObject[/tmp/ws/Main.class]]
//	[wrote DirectoryFileObject[/tmp/ws:Main.class]]
//	[wrote /tmp/ws/Main.class]
var wrotePattern = regexp.MustCompile(`^\[wrote (?:\w+FileObject\[)?(.+?\.class)\]?\]$`)

// ArtifactResolver finds the class to start after a Java compilation.
type ArtifactResolver interface {
	ResolveClass(compileStderr, workdir string) (string, error)
}

// JavacResolver reads javac -verbose output.
type JavacResolver struct{}

// ResolveClass returns the first top-level class javac wrote, falling back
// to the class files present in workdir.
func (JavacResolver) ResolveClass(compileStderr, workdir string) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(compileStderr))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		match := wrotePattern.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}
		if class, ok := topLevelClass(match[1]); ok {
			return class, nil
		}
	}

	entries, err := os.ReadDir(workdir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".class" {
			continue
		}
		if class, ok := topLevelClass(entry.Name()); ok {
			return class, nil
		}
	}
	return "", cerrors.ErrArtifactNotFound
}

// topLevelClass accepts /, \ and : as separators, javac uses all three
// depending on version and host.
func topLevelClass(path string) (string, bool) {
	if i := strings.LastIndexAny(path, `/\:`); i >= 0 {
		path = path[i+1:]
	}
	class := strings.TrimSuffix(path, ".class")
	if class == "" || strings.Contains(class, "$") {
		return "", false
	}
	return class, true
}

// StripVerbose removes javac's bracketed progress lines so that only
// diagnostics reach the room.
func StripVerbose(stderr string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(stderr, "\n") {
		if strings.HasPrefix(line, "[") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}
