package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// GainFileName is the fixed checkpoint name for a synthesized gain. The
// shield reloads it instead of re-running synthesis unless the caller
// forces re-learning.
const GainFileName = "K.model.npy"

// #region save-gain
// SaveGain writes the gain matrix to <dir>/K.model.npy.
func SaveGain(dir string, k *mat.Dense) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint dir: %w", err)
	}
	path := filepath.Join(dir, GainFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := npyio.Write(f, k); err != nil {
		f.Close()
		return fmt.Errorf("write npy %s: %w", path, err)
	}
	return f.Close()
}

// #endregion save-gain

// #region load-gain
// LoadGain reads the gain matrix back from <dir>/K.model.npy.
func LoadGain(dir string) (*mat.Dense, error) {
	path := filepath.Join(dir, GainFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var k mat.Dense
	if err := npyio.Read(f, &k); err != nil {
		return nil, fmt.Errorf("read npy %s: %w", path, err)
	}
	return &k, nil
}

// GainExists reports whether a gain checkpoint is present in dir.
func GainExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, GainFileName))
	return err == nil
}

// #endregion load-gain
