package steering

import (
	"bufio"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
	"k8s.io/klog/v2"
)

// ArtifactVersion identifies the on-disk model format.
const ArtifactVersion = "steerclone.model.v1"

// DefaultArtifactPath is where the training command writes the model.
const DefaultArtifactPath = "model.gob.xz"

// artifact is the self-contained model file: the layer descriptors plus the
// value of every trainable variable, gob-encoded inside an xz stream.
type artifact struct {
	Version    string
	InputShape Shape
	Layers     []LayerSpec
	Variables  []encodedVariable
}

type encodedVariable struct {
	Scope, Name string
	Dimensions  []int
	Values      []float32
}

func (m *Model) encode() (*artifact, error) {
	a := &artifact{
		Version:    ArtifactVersion,
		InputShape: m.InputShape(),
		Layers:     m.Layers(),
	}
	err := tryCatch(func() {
		m.ctx.EnumerateVariables(func(v *context.Variable) {
			if !v.Trainable {
				return
			}
			value := v.Value()
			a.Variables = append(a.Variables, encodedVariable{
				Scope:      v.Scope(),
				Name:       v.Name(),
				Dimensions: append([]int(nil), value.Shape().Dimensions...),
				Values:     tensors.CopyFlatData[float32](value),
			})
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(a.Variables, func(i, j int) bool {
		if a.Variables[i].Scope != a.Variables[j].Scope {
			return a.Variables[i].Scope < a.Variables[j].Scope
		}
		return a.Variables[i].Name < a.Variables[j].Name
	})
	return a, nil
}

// Save writes the layer descriptors and trained weights to a single file at
// path, replacing whatever is there. The file is written next to path and
// renamed into place, so a failed save never leaves a truncated artifact.
// Errors are *PersistenceError.
func (m *Model) Save(path string) error {
	a, err := m.encode()
	if err != nil {
		return &PersistenceError{Path: path, Op: "collect weights", Err: err}
	}
	if len(a.Variables) == 0 {
		return &PersistenceError{Path: path, Op: "collect weights", Err: errors.New("model has no initialized variables")}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistenceError{Path: path, Op: "create directory", Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &PersistenceError{Path: path, Op: "create", Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := writeArtifact(tmp, a); err != nil {
		tmp.Close()
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	klog.V(1).Infof("saved %d variables to %s", len(a.Variables), path)
	return nil
}

func writeArtifact(f *os.File, a *artifact) error {
	buf := bufio.NewWriter(f)
	zw, err := xz.NewWriter(buf)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(a); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Load reads a model written by Save. cfg only affects further training or
// evaluation batch sizes; the architecture comes from the file.
func Load(path string, cfg Config) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	zr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "read", Err: err}
	}
	var a artifact
	if err := gob.NewDecoder(zr).Decode(&a); err != nil {
		return nil, &PersistenceError{Path: path, Op: "decode", Err: err}
	}
	if a.Version != ArtifactVersion {
		return nil, &PersistenceError{Path: path, Op: "decode", Err: errors.Errorf("unsupported version %q", a.Version)}
	}

	m, err := NewModel(cfg, a.Layers, a.InputShape)
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "rebuild", Err: err}
	}
	err = tryCatch(func() {
		for _, v := range a.Variables {
			value := tensors.FromFlatDataAndDimensions(v.Values, v.Dimensions...)
			m.ctx.InAbsPath(v.Scope).VariableWithValue(v.Name, value)
		}
	})
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "restore weights", Err: err}
	}
	return m, nil
}
