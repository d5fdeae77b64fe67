// Package dotenv edits .env files in place, keeping unrelated lines intact.
package dotenv

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultFile is the env file updated when none is given.
const DefaultFile = ".env"

// ErrInvalidName is returned for variable names that cannot appear in an env
// file.
var ErrInvalidName = errors.New("invalid variable name")

// Set assigns value to name in the env file at path. An existing assignment
// is replaced where it stands; otherwise one is appended. A missing file is
// created.
func Set(path, name, value string) error {
	if name == "" || strings.ContainsAny(name, "= \t\r\n#") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	assignment, err := godotenv.Marshal(map[string]string{name: value})
	if err != nil {
		return err
	}

	var lines []string
	if content := strings.TrimRight(string(data), "\n"); content != "" {
		lines = strings.Split(content, "\n")
	}

	found := false
	for i, line := range lines {
		if keyOf(line) == name {
			lines[i] = assignment
			found = true
		}
	}
	if !found {
		lines = append(lines, assignment)
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// Read returns the variables assigned in the env file at path.
func Read(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

func keyOf(line string) string {
	env, err := godotenv.Unmarshal(line)
	if err != nil || len(env) != 1 {
		return ""
	}
	for k := range env {
		return k
	}
	return ""
}
