package domain

type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
	C          Language = "c"
	Cpp        Language = "cpp"
	Java       Language = "java"
)

// Languages lists every language the execution pipeline knows how to run.
var Languages = []Language{Python, JavaScript, C, Cpp, Java}

// Compiled reports whether the language needs a build step before running.
func (l Language) Compiled() bool {
	switch l {
	case C, Cpp, Java:
		return true
	default:
		return false
	}
}

func (l Language) Supported() bool {
	for _, lang := range Languages {
		if lang == l {
			return true
		}
	}
	return false
}
