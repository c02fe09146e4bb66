package config

import (
	"bufio"
	"os"
	"strings"
)

// loadDotenv populates the process environment from a simple KEY=VALUE file,
// one assignment per line, without overriding variables already set. Blank
// lines and lines starting with '#' are ignored; values may be wrapped in
// single or double quotes. Missing files are silently ignored.
//
// This is the one piece of the config surface with no library in the pack to
// lean on — no example repo vendors a dotenv reader, and the format is small
// enough that hand-rolling it is the idiomatic choice (mirrors what the
// dotenv crate the original process used actually does: first-file-wins,
// no override of already-set vars).
func loadDotenv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}
		if key == "" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, val)
	}
	return scanner.Err()
}

// LoadDotenvFiles loads, in order, "./gozo.env" then "/etc/gozo.env",
// matching the lookup order of the process this service replaces. Both are
// optional; a value already present in the environment always wins.
func LoadDotenvFiles() {
	_ = loadDotenv("./gozo.env")
	_ = loadDotenv("/etc/gozo.env")
}
