package config

import "os"

func readFileQuiet(path string) ([]byte, error) {
	return os.ReadFile(path)
}
