package store

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestGainCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if GainExists(dir) {
		t.Fatal("fresh dir reports a checkpoint")
	}

	k := mat.NewDense(1, 2, []float64{-127.36128, 0.5})
	if err := SaveGain(dir, k); err != nil {
		t.Fatalf("save gain: %v", err)
	}
	if !GainExists(dir) {
		t.Fatal("checkpoint not found after save")
	}

	got, err := LoadGain(dir)
	if err != nil {
		t.Fatalf("load gain: %v", err)
	}
	if !mat.EqualApprox(got, k, 0) {
		t.Fatal("gain changed across checkpoint round trip")
	}
}

func TestSaveGainCreatesNestedDir(t *testing.T) {
	dir := t.TempDir() + "/checkpoints/cruise"
	if err := SaveGain(dir, mat.NewDense(1, 1, []float64{-1})); err != nil {
		t.Fatalf("save gain: %v", err)
	}
	if !GainExists(dir) {
		t.Fatal("checkpoint missing in nested dir")
	}
}

func TestLoadGainMissing(t *testing.T) {
	if _, err := LoadGain(t.TempDir()); err == nil {
		t.Fatal("expected error for missing checkpoint")
	}
}
