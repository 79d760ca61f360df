package tool

import (
	"os"
)

func IsFileExists(filename string) (bool, error) {
	_, err := os.Stat(filename)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// EnsureDir creates dir (and parents) when missing
func EnsureDir(dir string) error {
	exists, err := IsFileExists(dir)
	if err != nil || exists {
		return err
	}
	return os.MkdirAll(dir, 0770)
}
