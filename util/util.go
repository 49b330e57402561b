package util

import (
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// StringListContains returns true if the list of strings contains item.
func StringListContains(list []string, item string) bool {
	if list != nil {
		for i := range list {
			if list[i] == item {
				return true
			}
		}
	}
	return false
}

// ExpandTilde expands a leading tilde in filePath to the user's home
// directory.
func ExpandTilde(filePath string) (string, error) {
	if filePath != "~" && !strings.HasPrefix(filePath, "~/") {
		return filePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(filePath, "~")), nil
}

// ProjectRoot returns the project root.
func ProjectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	absPath, _ := filepath.Abs(path.Join(filepath.Dir(thisFile), ".."))
	return absPath
}

// FileExtension returns the extension of name without the leading dot,
// or an empty string.
func FileExtension(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
