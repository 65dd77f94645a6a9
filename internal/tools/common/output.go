package common

import (
	"encoding/json"
	"io"
)

// CIResult is the single JSON document a tool prints in --ci mode.
type CIResult struct {
	OK       bool     `json:"ok"`
	Title    string   `json:"title"`
	Details  []string `json:"details,omitempty"`
	Error    string   `json:"error,omitempty"`
	ExitCode int      `json:"exit_code"`
}

func NewCIResult(title string, details []string, err error, code int) CIResult {
	res := CIResult{OK: err == nil, Title: title, Details: details}
	if err != nil {
		res.Error = err.Error()
		res.ExitCode = code
	}
	return res
}

func WriteCIResult(w io.Writer, res CIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
