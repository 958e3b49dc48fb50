package report

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Write stores res at path. The document goes to a temporary file in the same
// directory first and is renamed into place, so readers never see a partial file.
func Write(path string, res *RunResult) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp results file")
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err = enc.Encode(res); err != nil {
		return errors.Wrap(err, "encode results")
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync results")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close results")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "move results into place")
	}
	return nil
}

// Load reads a results document written by Write.
func Load(path string) (*RunResult, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "read results")
	}
	var res RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &res, nil
}
