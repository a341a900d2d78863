package batch

import (
	"encoding/json"
	"fmt"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome for one template in a batch.
type Result struct {
	Template string `json:"template"`
	Status   string `json:"status"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Summary aggregates the results of a batch.
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseNames accepts a single name or an array of names. A nil param is
// returned as an empty list so callers can fall back to every template.
func ParseNames(param interface{}, paramName string) ([]string, error) {
	switch v := param.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		names := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if s == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

// Summarize counts successes and failures.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Results: results}
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	return s
}

// FormatResults renders the summary of results as indented JSON.
func FormatResults(results []Result) string {
	out, _ := json.MarshalIndent(Summarize(results), "", "  ")
	return string(out)
}

// Process runs fn for each template and collects the outcomes. A failure
// for one template does not stop the others.
func Process(names []string, fn func(name string) (string, error)) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		res, err := fn(name)
		if err != nil {
			results = append(results, Result{Template: name, Status: StatusError, Error: err.Error()})
			continue
		}
		results = append(results, Result{Template: name, Status: StatusSuccess, Result: res})
	}
	return results
}
