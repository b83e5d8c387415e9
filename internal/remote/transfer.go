package remote

import (
	"io"
	"os"
	"path/filepath"

	"location-sync-service/pkg/errors"
)

// TransferResult is the outcome of downloading one file
type TransferResult struct {
	Name      string `json:"name"`
	LocalPath string `json:"local_path"`
	Bytes     int64  `json:"bytes"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the transfer succeeded
func (r TransferResult) OK() bool {
	return r.Err == nil
}

// Download copies name from the client into localDir, replacing any existing
// file. Failures are reported on the result and never returned; a failed
// transfer leaves no local file behind.
func Download(client Client, name, localDir string) TransferResult {
	result := TransferResult{
		Name:      name,
		LocalPath: filepath.Join(localDir, name),
	}

	fail := func(err error) TransferResult {
		result.Err = errors.NetworkError(errors.CodeTransferFailed, name, err)
		result.Error = err.Error()
		return result
	}

	body, err := client.Retr(name)
	if err != nil {
		return fail(err)
	}

	out, err := os.Create(result.LocalPath)
	if err != nil {
		body.Close()
		return fail(err)
	}

	n, err := io.Copy(out, body)
	// Closing the data response reads the server's final transfer reply.
	if cerr := body.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	result.Bytes = n
	if err != nil {
		os.Remove(result.LocalPath)
		return fail(err)
	}

	return result
}
